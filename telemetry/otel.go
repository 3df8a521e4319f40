package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoobzio/chainz"
)

const instrumentationName = "github.com/zoobzio/chainz"

// Attribute keys.
const (
	AttrPipeline   = attribute.Key("chainz.pipeline")
	AttrOperations = attribute.Key("chainz.operations")
	AttrToken      = attribute.Key("chainz.token")
	AttrExecuted   = attribute.Key("chainz.executed")
	AttrRolledBack = attribute.Key("chainz.rolled_back")
	AttrState      = attribute.Key("chainz.state")
	AttrOperation  = attribute.Key("chainz.operation")
	AttrIndex      = attribute.Key("chainz.operation.index")
	AttrFaulty     = attribute.Key("chainz.faulty")
)

// Traced emits one OpenTelemetry span per run of the wrapped runner and a
// child span per executed operation.
type Traced struct {
	runner chainz.Runner
	tracer trace.Tracer
}

var _ chainz.Runner = (*Traced)(nil)

// NewOTel wraps runner. A nil tracer uses the global tracer provider.
func NewOTel(runner chainz.Runner, tracer trace.Tracer) *Traced {
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	return &Traced{runner: runner, tracer: tracer}
}

// Name returns the wrapped runner's name.
func (t *Traced) Name() chainz.Name {
	return t.runner.Name()
}

// Len returns the wrapped runner's operation count.
func (t *Traced) Len() int {
	return t.runner.Len()
}

// RunContext runs the wrapped runner inside a span. A faulted run sets the
// span status to Error with the first error notice.
func (t *Traced) RunContext(ctx context.Context, m *chainz.Message) (*chainz.Report, error) {
	ctx, span := t.tracer.Start(ctx, "chainz.run "+t.runner.Name(),
		trace.WithAttributes(
			AttrPipeline.String(t.runner.Name()),
			AttrOperations.Int(t.runner.Len()),
		),
	)
	defer span.End()

	ctx = chainz.WithOperationTrace(ctx, t.operationTrace())
	report, err := t.runner.RunContext(ctx, m)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if report == nil {
		return report, err
	}

	span.SetAttributes(
		AttrToken.String(report.Token),
		AttrExecuted.Int(len(report.Executed)),
		AttrRolledBack.Int(len(report.RolledBack)),
		AttrState.String(report.State.String()),
	)
	switch {
	case err != nil:
	case report.Faulty:
		span.SetStatus(codes.Error, report.FirstError)
	default:
		span.SetStatus(codes.Ok, "")
	}
	return report, err
}

func (t *Traced) operationTrace() *chainz.OperationTrace {
	return &chainz.OperationTrace{
		OperationStart: func(ctx context.Context, pipeline, operation chainz.Name) context.Context {
			ctx, _ = t.tracer.Start(ctx, "chainz.operation "+operation,
				trace.WithAttributes(
					AttrPipeline.String(pipeline),
					AttrOperation.String(operation),
				),
			)
			return ctx
		},
		OperationDone: func(ctx context.Context, e chainz.OperationEvent) {
			span := trace.SpanFromContext(ctx)
			span.SetAttributes(
				AttrIndex.Int(e.Index),
				AttrFaulty.Bool(e.Faulty),
			)
			switch {
			case e.Error != nil:
				span.RecordError(e.Error)
				span.SetStatus(codes.Error, e.Error.Error())
			default:
				span.SetStatus(codes.Ok, "")
			}
			span.End()
		},
	}
}
