// Package telemetry wraps chainz runners with tracing and metrics.
//
// The core pipeline only produces a Report; the wrappers here turn each run
// into spans and counters without the core depending on a telemetry library.
package telemetry

import (
	"context"
	"fmt"
	"strconv"

	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"

	"github.com/zoobzio/chainz"
)

// Metric keys.
const (
	RunsTotal       = metricz.Key("chainz.runs.total")
	SuccessesTotal  = metricz.Key("chainz.successes.total")
	FailuresTotal   = metricz.Key("chainz.failures.total")
	AbortedTotal    = metricz.Key("chainz.aborted.total")
	RollbacksTotal  = metricz.Key("chainz.rollbacks.total")
	RollbackErrors  = metricz.Key("chainz.rollback_errors.total")
	OperationsGauge = metricz.Key("chainz.operations")
	DurationMs      = metricz.Key("chainz.duration.ms")
)

// Span names.
const (
	RunSpan       = tracez.Key("pipeline.run")
	OperationSpan = tracez.Key("pipeline.operation")
)

// Span tags.
const (
	TagPipeline       = tracez.Tag("pipeline.name")
	TagOperationCount = tracez.Tag("pipeline.operation_count")
	TagToken          = tracez.Tag("pipeline.token")
	TagSuccess        = tracez.Tag("pipeline.success")
	TagError          = tracez.Tag("pipeline.error")
	TagRolledBack     = tracez.Tag("pipeline.rolled_back")
	TagOperation      = tracez.Tag("operation.name")
	TagOperationIndex = tracez.Tag("operation.index")
	TagOwner          = tracez.Tag("operation.pipeline")
	TagFaulty         = tracez.Tag("operation.faulty")
)

// Observed records a tracez span and metricz measurements for every run of
// the wrapped runner, with a child span per executed operation. Operations of
// nested scopes become children of the scope's span. It is itself a chainz.Runner, so wrappers stack.
//
//	observed := telemetry.NewObserved(checkout)
//	observed.Tracer().OnSpanComplete(func(span tracez.Span) { ... })
//	report, err := observed.RunContext(ctx, chainz.NewMessage())
type Observed struct {
	runner  chainz.Runner
	metrics *metricz.Registry
	tracer  *tracez.Tracer
}

var _ chainz.Runner = (*Observed)(nil)

// NewObserved wraps runner.
func NewObserved(runner chainz.Runner) *Observed {
	metrics := metricz.New()
	metrics.Counter(RunsTotal)
	metrics.Counter(SuccessesTotal)
	metrics.Counter(FailuresTotal)
	metrics.Counter(AbortedTotal)
	metrics.Counter(RollbacksTotal)
	metrics.Counter(RollbackErrors)
	metrics.Gauge(OperationsGauge)
	metrics.Gauge(DurationMs)

	return &Observed{
		runner:  runner,
		metrics: metrics,
		tracer:  tracez.New(),
	}
}

// Name returns the wrapped runner's name.
func (o *Observed) Name() chainz.Name {
	return o.runner.Name()
}

// Len returns the wrapped runner's operation count.
func (o *Observed) Len() int {
	return o.runner.Len()
}

// RunContext runs the wrapped runner inside a span and records the outcome.
func (o *Observed) RunContext(ctx context.Context, m *chainz.Message) (*chainz.Report, error) {
	o.metrics.Counter(RunsTotal).Inc()

	ctx, span := o.tracer.StartSpan(ctx, RunSpan)
	span.SetTag(TagPipeline, o.runner.Name())
	span.SetTag(TagOperationCount, strconv.Itoa(o.runner.Len()))
	defer span.Finish()

	ctx = chainz.WithOperationTrace(ctx, o.operationTrace())
	report, err := o.runner.RunContext(ctx, m)
	if report == nil {
		o.metrics.Counter(FailuresTotal).Inc()
		span.SetTag(TagSuccess, "false")
		if err != nil {
			span.SetTag(TagError, err.Error())
		}
		return report, err
	}

	span.SetTag(TagToken, report.Token)
	span.SetTag(TagRolledBack, strconv.Itoa(len(report.RolledBack)))
	o.metrics.Gauge(OperationsGauge).Set(float64(report.Operations))
	o.metrics.Gauge(DurationMs).Set(float64(report.Duration.Milliseconds()))
	for range report.RolledBack {
		o.metrics.Counter(RollbacksTotal).Inc()
	}
	for i := 0; i < report.RollbackErrors; i++ {
		o.metrics.Counter(RollbackErrors).Inc()
	}
	if report.Aborted {
		o.metrics.Counter(AbortedTotal).Inc()
	}

	if report.Succeeded() {
		span.SetTag(TagSuccess, "true")
		o.metrics.Counter(SuccessesTotal).Inc()
	} else {
		span.SetTag(TagSuccess, "false")
		o.metrics.Counter(FailuresTotal).Inc()
		span.SetTag(TagError, failureText(report, err))
	}
	return report, err
}

type finishKey struct{}

func (o *Observed) operationTrace() *chainz.OperationTrace {
	return &chainz.OperationTrace{
		OperationStart: func(ctx context.Context, pipeline, operation chainz.Name) context.Context {
			ctx, span := o.tracer.StartSpan(ctx, OperationSpan)
			span.SetTag(TagOwner, pipeline)
			span.SetTag(TagOperation, operation)
			return context.WithValue(ctx, finishKey{}, func(e chainz.OperationEvent) {
				span.SetTag(TagOperationIndex, strconv.Itoa(e.Index))
				span.SetTag(TagFaulty, strconv.FormatBool(e.Faulty))
				span.SetTag(TagSuccess, strconv.FormatBool(e.Executed))
				if e.Error != nil {
					span.SetTag(TagError, e.Error.Error())
				}
				span.Finish()
			})
		},
		OperationDone: func(ctx context.Context, e chainz.OperationEvent) {
			if finish, ok := ctx.Value(finishKey{}).(func(chainz.OperationEvent)); ok {
				finish(e)
			}
		},
	}
}

// Metrics returns the metrics registry.
func (o *Observed) Metrics() *metricz.Registry {
	return o.metrics
}

// Tracer returns the tracer.
func (o *Observed) Tracer() *tracez.Tracer {
	return o.tracer
}

// Close releases the tracer.
func (o *Observed) Close() error {
	o.tracer.Close()
	return nil
}

func failureText(report *chainz.Report, err error) string {
	switch {
	case err != nil:
		return err.Error()
	case report.FirstError != "":
		return report.FirstError
	default:
		return fmt.Sprintf("pipeline %s faulted", report.Pipeline)
	}
}
