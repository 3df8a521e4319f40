package chainz

import (
	"context"
	"errors"
	"fmt"
)

type adapted[In, Out, OpIn, OpOut any] struct {
	op     TypedOperation[OpIn, OpOut]
	narrow func(In) OpIn
	widen  func(OpOut) Out
}

// Adapt registers an operation whose types differ from the pipeline's.
// narrow converts the pipeline input for the operation and widen converts
// the operation result back.
//
//	// priceOrder handles any Priceable; the pipeline takes OrderRequest.
//	checkout.Add(chainz.Adapt(priceOrder,
//	    func(r OrderRequest) Priceable { return r },
//	    func(q Quote) OrderReceipt { return OrderReceipt{Total: q.Total} },
//	))
func Adapt[In, Out, OpIn, OpOut any](op TypedOperation[OpIn, OpOut], narrow func(In) OpIn, widen func(OpOut) Out) TypedOperation[In, Out] {
	return &adapted[In, Out, OpIn, OpOut]{op: op, narrow: narrow, widen: widen}
}

func (a *adapted[In, Out, OpIn, OpOut]) Name() Name {
	return a.op.Name()
}

func (a *adapted[In, Out, OpIn, OpOut]) Execute(ctx context.Context, in In) Result[Out] {
	v, err := a.op.Execute(ctx, a.narrow(in)).Unwrap()
	if err != nil {
		return Fail[Out](err)
	}
	return Ok(a.widen(v))
}

func (a *adapted[In, Out, OpIn, OpOut]) Rollback(ctx context.Context, in In) error {
	return a.op.Rollback(ctx, a.narrow(in))
}

func (a *adapted[In, Out, OpIn, OpOut]) compensatesOnFailure() bool {
	return compensatesOnFailure(a.op)
}

type then[A, B, C any] struct {
	first  TypedOperation[A, B]
	second TypedOperation[B, C]
	name   Name
}

// Then composes two typed operations end to end. When the second stage
// fails, the first is rolled back with the original input.
//
// Rollback of the composed operation compensates the first stage only; the
// intermediate value is not retained between calls.
func Then[A, B, C any](first TypedOperation[A, B], second TypedOperation[B, C]) TypedOperation[A, C] {
	return &then[A, B, C]{
		first:  first,
		second: second,
		name:   first.Name() + "+" + second.Name(),
	}
}

func (t *then[A, B, C]) Name() Name {
	return t.name
}

func (t *then[A, B, C]) Execute(ctx context.Context, in A) Result[C] {
	mid, err := t.first.Execute(ctx, in).Unwrap()
	if err != nil {
		return Fail[C](err)
	}
	res := t.second.Execute(ctx, mid)
	if res.IsOk() {
		return res
	}
	if rbErr := t.first.Rollback(context.WithoutCancel(ctx), in); rbErr != nil {
		return Fail[C](errors.Join(res.Err(), fmt.Errorf("rollback %s: %w", t.first.Name(), rbErr)))
	}
	return res
}

func (t *then[A, B, C]) Rollback(ctx context.Context, in A) error {
	return t.first.Rollback(ctx, in)
}

func (t *then[A, B, C]) compensatesOnFailure() bool { return true }

// Bind embeds a typed operation in an untyped pipeline. The input is read
// from the message content and the output stored back. A missing input or a
// failed result faults the message.
//
// Rollback compensates the typed operation only when it ran in this run.
// Typed pipelines and Then chains that failed have already compensated
// themselves and are not rolled back again.
//
// AsRequired marks the bound operation required. A WithRollback function
// runs after the typed operation's own rollback.
func Bind[In, Out any](op TypedOperation[In, Out], opts ...StepOption) *Step {
	var cfg stepConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	name := op.Name()
	extra := cfg.rollback
	key := &boundKey{name: name}

	return &Step{
		name:     name,
		required: cfg.required,
		exec: func(ctx context.Context, m *Message) error {
			in, ok := Get[In](m)
			if !ok {
				m.SetRunState(key, boundMissing)
				m.failFrom(name, fmt.Sprintf("%v: %s", ErrMissingInput, typeName[In]()))
				return nil
			}
			out, err := op.Execute(ctx, in).Unwrap()
			if err != nil {
				m.SetRunState(key, boundFailed)
				m.failFrom(name, err.Error())
				return nil
			}
			m.SetRunState(key, boundDone)
			Put(m, out)
			return nil
		},
		rollback: func(ctx context.Context, m *Message) error {
			state, _ := m.RunState(key)
			m.SetRunState(key, boundMissing)
			var errs []error
			if in, ok := Get[In](m); ok {
				switch state {
				case boundDone:
					errs = append(errs, op.Rollback(ctx, in))
				case boundFailed:
					if !compensatesOnFailure(op) {
						errs = append(errs, op.Rollback(ctx, in))
					}
				}
			}
			if extra != nil {
				errs = append(errs, extra(ctx, m))
			}
			return errors.Join(errs...)
		},
	}
}

// boundKey identifies one Bind in the message run state.
type boundKey struct {
	name Name
}

type boundState int

const (
	boundMissing boundState = iota
	boundDone
	boundFailed
)
