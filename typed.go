package chainz

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/zoobzio/clockz"
)

// TypedOperation is an operation with an explicit input and output type.
// Registration is checked by the compiler: a TypedOperation[Invoice, Receipt]
// cannot be added to a Typed[Order, Receipt]. Use Adapt to register an
// operation whose types differ.
type TypedOperation[In, Out any] interface {
	Name() Name
	Execute(context.Context, In) Result[Out]
	Rollback(context.Context, In) error
}

type typedFunc[In, Out any] struct {
	fn       func(context.Context, In) (Out, error)
	rollback func(context.Context, In) error
	name     Name
}

func (f *typedFunc[In, Out]) Name() Name { return f.name }

func (f *typedFunc[In, Out]) Execute(ctx context.Context, in In) Result[Out] {
	out, err := f.fn(ctx, in)
	if err != nil {
		return Fail[Out](err)
	}
	return Ok(out)
}

func (f *typedFunc[In, Out]) Rollback(ctx context.Context, in In) error {
	if f.rollback == nil {
		return nil
	}
	return f.rollback(ctx, in)
}

// TypedFunc wraps a plain transform as a TypedOperation with no rollback.
func TypedFunc[In, Out any](name Name, fn func(context.Context, In) (Out, error)) TypedOperation[In, Out] {
	return &typedFunc[In, Out]{name: name, fn: fn}
}

// Typed runs typed operations against one input and returns the result of
// the last operation.
//
// Every operation receives the original input. The first failure stops the
// run and the operations that already succeeded are rolled back in reverse
// order with that input. Typed is itself a TypedOperation, so pipelines nest
// and compose with Then.
//
//	checkout := chainz.NewTyped[OrderRequest, OrderReceipt]("checkout").
//	    Add(priceOrder, reserveStock).
//	    AddFunc("issue-receipt", issueReceipt)
//
//	receipt, err := checkout.Run(ctx, req).Unwrap()
type Typed[In, Out any] struct {
	logger        Logger
	clock         clockz.Clock
	name          Name
	operations    []TypedOperation[In, Out]
	mu            sync.RWMutex
	forceRollback bool
	propagate     bool
}

// NewTyped creates an empty typed pipeline.
func NewTyped[In, Out any](name Name) *Typed[In, Out] {
	return &Typed[In, Out]{name: name}
}

// Add appends operations.
func (t *Typed[In, Out]) Add(operations ...TypedOperation[In, Out]) *Typed[In, Out] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operations = append(t.operations, operations...)
	return t
}

// AddFunc appends fn as an operation with no rollback.
func (t *Typed[In, Out]) AddFunc(name Name, fn func(context.Context, In) (Out, error)) *Typed[In, Out] {
	return t.Add(&typedFunc[In, Out]{name: name, fn: fn})
}

// AddFuncWithRollback appends fn as an operation compensated by rollback.
func (t *Typed[In, Out]) AddFuncWithRollback(name Name, fn func(context.Context, In) (Out, error), rollback func(context.Context, In) error) *Typed[In, Out] {
	return t.Add(&typedFunc[In, Out]{name: name, fn: fn, rollback: rollback})
}

// ForceRollbackOnFailure also rolls back the operation that failed.
func (t *Typed[In, Out]) ForceRollbackOnFailure(enabled bool) *Typed[In, Out] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forceRollback = enabled
	return t
}

// AllowPropagateError re-raises panics after rollback instead of turning them
// into a failed Result.
func (t *Typed[In, Out]) AllowPropagateError(enabled bool) *Typed[In, Out] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.propagate = enabled
	return t
}

// WithLogger sets the logger.
func (t *Typed[In, Out]) WithLogger(logger Logger) *Typed[In, Out] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logger = logger
	return t
}

// WithClock sets the clock used for timing.
func (t *Typed[In, Out]) WithClock(clock clockz.Clock) *Typed[In, Out] {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = clock
	return t
}

// Name returns the pipeline name.
func (t *Typed[In, Out]) Name() Name {
	return t.name
}

// Len returns the number of operations.
func (t *Typed[In, Out]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.operations)
}

// Names returns the operation names in order.
func (t *Typed[In, Out]) Names() []Name {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]Name, len(t.operations))
	for i, op := range t.operations {
		names[i] = op.Name()
	}
	return names
}

// Execute runs the pipeline. It makes Typed a TypedOperation.
func (t *Typed[In, Out]) Execute(ctx context.Context, in In) Result[Out] {
	return t.Run(ctx, in)
}

// Run executes the operations in order with in.
//
// A failed Result carries an *Error whose path is the pipeline and the
// failing operation, with every rollback error joined into Error.Rollback.
func (t *Typed[In, Out]) Run(ctx context.Context, in In) Result[Out] {
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.RLock()
	ops := slices.Clone(t.operations)
	clock := t.clock
	logger := loggerOrNop(t.logger)
	force, propagate := t.forceRollback, t.propagate
	t.mu.RUnlock()
	if clock == nil {
		clock = clockz.RealClock
	}

	started := clock.Now()
	if len(ops) == 0 {
		return Fail[Out](newError([]Name{t.name}, ErrEmptyPipeline, started, clock.Now()))
	}

	var last Result[Out]
	for i, op := range ops {
		if err := ctx.Err(); err != nil {
			logger.Warn(ctx, "run canceled", "pipeline", t.name, "operation", op.Name(), "error", err)
			chainErr := newError([]Name{t.name, op.Name()}, fmt.Errorf("%w: %w", ErrCanceled, err), started, clock.Now())
			chainErr.Rollback = t.rollback(ctx, logger, ops[:i], in)
			return Fail[Out](chainErr)
		}

		res, pe := dispatchTyped(ctx, op, in)
		if res.IsOk() {
			last = res
			continue
		}

		logger.Error(ctx, "operation failed", "pipeline", t.name, "operation", op.Name(), "error", res.Err())
		done := ops[:i]
		if force && !compensatesOnFailure(op) {
			done = ops[:i+1]
		}
		rollbackErr := t.rollback(ctx, logger, done, in)
		if pe != nil && propagate {
			panic(pe.Value)
		}
		chainErr := newError([]Name{t.name, op.Name()}, res.Err(), started, clock.Now())
		chainErr.Rollback = rollbackErr
		return Fail[Out](chainErr)
	}
	logger.Debug(ctx, "pipeline completed", "pipeline", t.name, "operations", len(ops))
	return last
}

// Rollback compensates every operation in reverse order with in. Used when
// the pipeline completed as a nested stage and a later stage fails. A failed
// run has already compensated itself, so callers must not roll it back again.
func (t *Typed[In, Out]) Rollback(ctx context.Context, in In) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.mu.RLock()
	ops := slices.Clone(t.operations)
	logger := loggerOrNop(t.logger)
	t.mu.RUnlock()
	return t.rollback(ctx, logger, ops, in)
}

func (t *Typed[In, Out]) rollback(ctx context.Context, logger Logger, ops []TypedOperation[In, Out], in In) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(ops) - 1; i >= 0; i-- {
		if err := rollbackTyped(ctx, ops[i], in); err != nil {
			logger.Warn(ctx, "rollback failed", "pipeline", t.name, "operation", ops[i].Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ops[i].Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (t *Typed[In, Out]) compensatesOnFailure() bool { return true }

// compensator is implemented by typed operations that roll back their own
// completed work before returning a failed Result.
type compensator interface {
	compensatesOnFailure() bool
}

func compensatesOnFailure(op any) bool {
	c, ok := op.(compensator)
	return ok && c.compensatesOnFailure()
}

func dispatchTyped[In, Out any](ctx context.Context, op TypedOperation[In, Out], in In) (res Result[Out], pe *PanicError) {
	defer func() {
		if r := recover(); r != nil {
			pe = &PanicError{Operation: op.Name(), Value: r, sanitized: sanitizePanicMessage(r)}
			res = Fail[Out](pe)
		}
	}()
	return op.Execute(ctx, in), nil
}

func rollbackTyped[In, Out any](ctx context.Context, op TypedOperation[In, Out], in In) (err error) {
	defer recoverFromPanic(&err, op.Name())
	return op.Rollback(ctx, in)
}
