package chainz

import "context"

// OperationTrace holds callbacks invoked synchronously around every operation
// a Pipeline or Scope dispatches under a context carrying the trace. Skipped
// operations produce no callbacks.
//
//	ctx = chainz.WithOperationTrace(ctx, &chainz.OperationTrace{
//	    OperationStart: func(ctx context.Context, pipeline, op chainz.Name) context.Context {
//	        return startSpan(ctx, op)
//	    },
//	    OperationDone: func(ctx context.Context, e chainz.OperationEvent) {
//	        endSpan(ctx, e)
//	    },
//	})
type OperationTrace struct {
	// OperationStart runs before the operation. A non-nil return value
	// becomes the context handed to the operation and to OperationDone.
	OperationStart func(ctx context.Context, pipeline, operation Name) context.Context

	// OperationDone runs after the operation returns or panics.
	OperationDone func(ctx context.Context, event OperationEvent)
}

type traceKey struct{}

// WithOperationTrace returns a copy of ctx carrying trace. A trace already
// carried by ctx keeps running: its OperationStart is called first and its
// OperationDone last.
func WithOperationTrace(ctx context.Context, trace *OperationTrace) context.Context {
	if prev := ContextOperationTrace(ctx); prev != nil {
		outer, inner := prev, trace
		trace = &OperationTrace{
			OperationStart: func(ctx context.Context, pipeline, operation Name) context.Context {
				return inner.start(outer.start(ctx, pipeline, operation), pipeline, operation)
			},
			OperationDone: func(ctx context.Context, event OperationEvent) {
				inner.done(ctx, event)
				outer.done(ctx, event)
			},
		}
	}
	return context.WithValue(ctx, traceKey{}, trace)
}

// ContextOperationTrace returns the trace carried by ctx, or nil.
func ContextOperationTrace(ctx context.Context) *OperationTrace {
	if ctx == nil {
		return nil
	}
	trace, _ := ctx.Value(traceKey{}).(*OperationTrace)
	return trace
}

func (t *OperationTrace) start(ctx context.Context, pipeline, operation Name) context.Context {
	if t == nil || t.OperationStart == nil {
		return ctx
	}
	if c := t.OperationStart(ctx, pipeline, operation); c != nil {
		return c
	}
	return ctx
}

func (t *OperationTrace) done(ctx context.Context, event OperationEvent) {
	if t == nil || t.OperationDone == nil {
		return
	}
	t.OperationDone(ctx, event)
}
