package chainz

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
)

// Pipeline runs an ordered list of operations against one Message.
//
// Operations execute in insertion order, one at a time. After each operation
// the pipeline inspects the message:
//   - a locked message skips every operation that is not required
//   - a faulty message stops the run (BreakOnFail, the default), or skips the
//     remaining non-required operations when BreakOnFail is off
//
// When the run ends with a faulty message, every operation that executed up
// to the fault is rolled back in reverse order. ForceRollbackOnFailure extends
// rollback to required operations that ran after the fault. A clean run never
// rolls back.
//
// Errors returned by operations, and panics, are unexpected. By default they
// fault the message with the error text. With AllowPropagateError the run
// stops, rolls back what executed before the failing operation and returns
// the error wrapped in *Error.
//
// The operation list may be modified concurrently with runs; each run works on
// a snapshot.
//
// # Observability
//
// Events (via hooks, delivered asynchronously):
//   - pipeline.operation_complete: after each operation is dispatched or skipped
//   - pipeline.rollback: after each compensation
//   - pipeline.complete: once per run, with the Report
//
// Example:
//
//	checkout := chainz.NewPipeline("checkout",
//	    validateCart,
//	    reserveStock,
//	    chargeCard,
//	    chainz.Effect("receipt", sendReceipt, chainz.AsRequired()),
//	).ForceRollbackOnFailure(true)
//
//	checkout.OnComplete(func(ctx context.Context, e chainz.CompleteEvent) error {
//	    log.Printf("%s: %s", e.Report.Pipeline, e.Report.State)
//	    return nil
//	})
type Pipeline struct {
	logger        Logger
	clock         clockz.Clock
	opHooks       *hookz.Hooks[OperationEvent]
	rollbackHooks *hookz.Hooks[RollbackEvent]
	completeHooks *hookz.Hooks[CompleteEvent]
	name          Name
	operations    []Operation
	mu            sync.RWMutex
	breakOnFail   bool
	forceRollback bool
	propagate     bool
}

// NewPipeline creates a Pipeline with optional initial operations.
func NewPipeline(name Name, operations ...Operation) *Pipeline {
	return &Pipeline{
		name:          name,
		operations:    slices.Clone(operations),
		breakOnFail:   true,
		opHooks:       hookz.New[OperationEvent](),
		rollbackHooks: hookz.New[RollbackEvent](),
		completeHooks: hookz.New[CompleteEvent](),
	}
}

// BreakOnFail controls whether a faulty message stops the run. When off, the
// run continues but only required operations execute. Defaults to true.
func (p *Pipeline) BreakOnFail(enabled bool) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakOnFail = enabled
	return p
}

// ForceRollbackOnFailure includes operations that ran after the fault point
// in the rollback of a faulty run.
func (p *Pipeline) ForceRollbackOnFailure(enabled bool) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceRollback = enabled
	return p
}

// AllowPropagateError makes unexpected operation errors stop the run and
// return to the caller instead of faulting the message.
func (p *Pipeline) AllowPropagateError(enabled bool) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.propagate = enabled
	return p
}

// WithLogger sets the logger. A nil logger discards output.
func (p *Pipeline) WithLogger(logger Logger) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
	return p
}

// WithClock sets the clock used for timing. Useful for testing.
func (p *Pipeline) WithClock(clock clockz.Clock) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
	return p
}

func (p *Pipeline) getClock() clockz.Clock {
	if p.clock == nil {
		return clockz.RealClock
	}
	return p.clock
}

// Run executes the pipeline synchronously. Operations are invoked through
// Execute and Rollback only.
//
// The returned error is non-nil only when m is nil or when AllowPropagateError
// is set and an operation failed unexpectedly. Business faults are reported
// through the message and the Report.
func (p *Pipeline) Run(m *Message) (*Report, error) {
	return p.execute(context.Background(), false, m)
}

// RunContext executes the pipeline with cancellation. The context is checked
// before each dispatch; a cancelled run faults the message, dispatches nothing
// further and rolls back. Operations implementing ContextOperation receive
// ctx; others fall back to Execute.
func (p *Pipeline) RunContext(ctx context.Context, m *Message) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.execute(ctx, true, m)
}

func (p *Pipeline) execute(ctx context.Context, withCtx bool, m *Message) (*Report, error) {
	if m == nil {
		return nil, fmt.Errorf("pipeline %q: %w", p.Name(), ErrNilMessage)
	}

	p.mu.RLock()
	ops := slices.Clone(p.operations)
	r := &runner{
		name:          p.name,
		kind:          "pipeline",
		logger:        p.logger,
		clock:         p.getClock(),
		observer:      p,
		breakOnFail:   p.breakOnFail,
		forceRollback: p.forceRollback,
		propagate:     p.propagate,
	}
	p.mu.RUnlock()

	log := loggerOrNop(r.logger)
	report := &Report{
		Pipeline:   r.name,
		Token:      m.Token(),
		Operations: len(ops),
		Started:    r.clock.Now(),
		State:      StateRunning,
	}
	log.Info(ctx, "pipeline started", "pipeline", r.name, "token", m.Token(), "operations", len(ops))

	h := newHistory(m)
	out := r.run(ctx, withCtx, m, ops, h)
	report.Executed = out.executed
	report.Skipped = out.skipped
	report.Aborted = out.aborted

	var err error
	switch {
	case out.err != nil:
		report.RolledBack = out.rolledBack
		report.RollbackErrors = out.rollbackFailures
		err = out.err
	case m.Faulty():
		report.RolledBack, report.RollbackErrors = r.rollback(ctx, withCtx, m, h.targets(r.forceRollback))
	}

	report.Faulty = m.Faulty() || out.err != nil
	report.FirstError = m.FirstError()
	if report.FirstError == "" && out.err != nil {
		report.FirstError = out.err.Error()
	}
	if report.Faulty {
		report.State = StateFaulted
	} else {
		report.State = StateCompleted
	}
	report.Duration = r.clock.Since(report.Started)

	_ = p.completeHooks.Emit(ctx, PipelineEventComplete, CompleteEvent{Report: *report, Error: err}) //nolint:errcheck

	if report.Faulty {
		log.Warn(ctx, "pipeline faulted", "pipeline", r.name, "token", m.Token(), "error", report.FirstError, "rolled_back", len(report.RolledBack))
	} else {
		log.Info(ctx, "pipeline completed", "pipeline", r.name, "token", m.Token(), "executed", len(report.Executed))
	}
	return report, err
}

func (p *Pipeline) operationDone(ctx context.Context, event OperationEvent) {
	_ = p.opHooks.Emit(ctx, PipelineEventOperationComplete, event) //nolint:errcheck
}

func (p *Pipeline) rolledBack(ctx context.Context, event RollbackEvent) {
	_ = p.rollbackHooks.Emit(ctx, PipelineEventRollback, event) //nolint:errcheck
}

// Register adds operations to the end of the Pipeline.
func (p *Pipeline) Register(operations ...Operation) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operations = append(p.operations, operations...)
	return p
}

// Push adds operations to the back of the Pipeline (runs last).
func (p *Pipeline) Push(operations ...Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operations = append(p.operations, operations...)
}

// Unshift adds operations to the front of the Pipeline (runs first).
func (p *Pipeline) Unshift(operations ...Operation) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operations = slices.Insert(p.operations, 0, operations...)
}

// Shift removes and returns the first operation.
func (p *Pipeline) Shift() (Operation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.operations) == 0 {
		return nil, ErrEmptyPipeline
	}
	op := p.operations[0]
	p.operations = p.operations[1:]
	return op, nil
}

// Pop removes and returns the last operation.
func (p *Pipeline) Pop() (Operation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.operations) == 0 {
		return nil, ErrEmptyPipeline
	}
	last := len(p.operations) - 1
	op := p.operations[last]
	p.operations = p.operations[:last]
	return op, nil
}

// At returns the operation at index.
func (p *Pipeline) At(index int) (Operation, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if index < 0 || index >= len(p.operations) {
		return nil, ErrIndexOutOfBounds
	}
	return p.operations[index], nil
}

// Remove removes the first operation with the given name.
func (p *Pipeline) Remove(name Name) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, op := range p.operations {
		if op.Name() == name {
			p.operations = slices.Delete(p.operations, i, i+1)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Replace replaces the first operation with the given name.
func (p *Pipeline) Replace(name Name, operation Operation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, op := range p.operations {
		if op.Name() == name {
			p.operations[i] = operation
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// After inserts operations after the first operation with the given name.
func (p *Pipeline) After(name Name, operations ...Operation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, op := range p.operations {
		if op.Name() == name {
			p.operations = slices.Insert(p.operations, i+1, operations...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Before inserts operations before the first operation with the given name.
func (p *Pipeline) Before(name Name, operations ...Operation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, op := range p.operations {
		if op.Name() == name {
			p.operations = slices.Insert(p.operations, i, operations...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Clear removes all operations.
func (p *Pipeline) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operations = nil
}

// Names returns the operation names in order.
func (p *Pipeline) Names() []Name {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]Name, len(p.operations))
	for i, op := range p.operations {
		names[i] = op.Name()
	}
	return names
}

// Len returns the number of operations.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.operations)
}

// Name returns the pipeline name.
func (p *Pipeline) Name() Name {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Close releases the hook registries.
func (p *Pipeline) Close() error {
	p.opHooks.Close()
	p.rollbackHooks.Close()
	p.completeHooks.Close()
	return nil
}

// OnOperationComplete registers a handler called asynchronously after each
// operation is dispatched or skipped.
func (p *Pipeline) OnOperationComplete(handler func(context.Context, OperationEvent) error) error {
	_, err := p.opHooks.Hook(PipelineEventOperationComplete, handler)
	return err
}

// OnRollback registers a handler called asynchronously after each
// compensation.
func (p *Pipeline) OnRollback(handler func(context.Context, RollbackEvent) error) error {
	_, err := p.rollbackHooks.Hook(PipelineEventRollback, handler)
	return err
}

// OnComplete registers a handler called asynchronously once per run.
func (p *Pipeline) OnComplete(handler func(context.Context, CompleteEvent) error) error {
	_, err := p.completeHooks.Hook(PipelineEventComplete, handler)
	return err
}
