package chainz

import (
	"context"
	"errors"
	"fmt"

	"github.com/zoobzio/clockz"
)

// runner is the loop shared by Pipeline and Scope. It applies the lock and
// fault rules, records the execution history and performs rollback.
type runner struct {
	logger        Logger
	clock         clockz.Clock
	observer      observer
	name          Name
	kind          string
	breakOnFail   bool
	forceRollback bool
	propagate     bool
}

// observer receives per-operation notifications. Pipeline forwards them to
// its hooks; scopes run without one.
type observer interface {
	operationDone(context.Context, OperationEvent)
	rolledBack(context.Context, RollbackEvent)
}

// history is the ordered list of operations that executed in one run.
// faultMark is the history length at the moment the message was first seen
// faulty, or -1 while it is healthy.
type history struct {
	ops       []Operation
	faultMark int
}

func newHistory(m *Message) *history {
	h := &history{faultMark: -1}
	if m.Faulty() {
		h.faultMark = 0
	}
	return h
}

func (h *history) mark(m *Message) {
	if h.faultMark < 0 && m.Faulty() {
		h.faultMark = len(h.ops)
	}
}

// targets returns the operations to compensate. Operations that executed
// after the fault point are only included when force is set.
func (h *history) targets(force bool) []Operation {
	if force || h.faultMark < 0 {
		return h.ops
	}
	return h.ops[:h.faultMark]
}

type outcome struct {
	err              *Error
	executed         []Name
	skipped          []Name
	rolledBack       []Name
	rollbackFailures int
	aborted          bool
}

// run dispatches ops in order against m. When withCtx is set, ctx is checked
// before every dispatch and ContextOperations receive it.
func (r *runner) run(ctx context.Context, withCtx bool, m *Message, ops []Operation, h *history) outcome {
	var out outcome
	log := loggerOrNop(r.logger)
	trace := ContextOperationTrace(ctx)

	for i, op := range ops {
		if withCtx {
			if err := ctx.Err(); err != nil {
				log.Warn(ctx, "run canceled", r.kind, r.name, "token", m.Token(), "error", err)
				m.failFrom(r.name, fmt.Sprintf("%v: %v", ErrCanceled, err))
				h.mark(m)
				out.aborted = true
				break
			}
		}

		if !op.Required() {
			if m.Locked() {
				log.Debug(ctx, "operation skipped", r.kind, r.name, "operation", op.Name(), "token", m.Token(), "reason", "locked")
				out.skipped = append(out.skipped, op.Name())
				r.notify(ctx, OperationEvent{Pipeline: r.name, Operation: op.Name(), Index: i, Skipped: true, Faulty: m.Faulty(), Timestamp: r.clock.Now()})
				continue
			}
			if m.Faulty() {
				if r.breakOnFail {
					break
				}
				log.Debug(ctx, "operation skipped", r.kind, r.name, "operation", op.Name(), "token", m.Token(), "reason", "faulty")
				out.skipped = append(out.skipped, op.Name())
				r.notify(ctx, OperationEvent{Pipeline: r.name, Operation: op.Name(), Index: i, Skipped: true, Faulty: true, Timestamp: r.clock.Now()})
				continue
			}
		}

		log.Debug(ctx, "operation started", r.kind, r.name, "operation", op.Name(), "token", m.Token())
		opCtx := trace.start(ctx, r.name, op.Name())
		started := r.clock.Now()
		err := invoke(opCtx, withCtx, op, m)
		finished := r.clock.Now()

		event := OperationEvent{Pipeline: r.name, Operation: op.Name(), Index: i, Executed: err == nil, Faulty: m.Faulty(), Error: err, Duration: finished.Sub(started), Timestamp: finished}
		trace.done(opCtx, event)
		r.notify(ctx, event)

		if err != nil {
			log.Error(ctx, "operation failed", r.kind, r.name, "operation", op.Name(), "token", m.Token(), "error", err)
			if r.propagate {
				var chainErr *Error
				if errors.As(err, &chainErr) {
					out.err = prefixPath(r.name, err, started, finished)
				} else {
					out.err = newError([]Name{r.name, op.Name()}, err, started, finished)
				}
				out.rolledBack, out.rollbackFailures = r.rollback(ctx, withCtx, m, h.targets(r.forceRollback))
				return out
			}
			m.failFrom(op.Name(), err.Error())
		} else {
			h.ops = append(h.ops, op)
			out.executed = append(out.executed, op.Name())
		}
		h.mark(m)

		if m.Faulty() && r.breakOnFail {
			log.Info(ctx, "run stopped on fault", r.kind, r.name, "operation", op.Name(), "token", m.Token())
			break
		}
	}
	return out
}

// rollback compensates ops in reverse order. Failures are logged, noted on
// the message and never stop the remaining compensations. Cancellation of ctx
// is ignored.
func (r *runner) rollback(ctx context.Context, withCtx bool, m *Message, ops []Operation) (rolled []Name, failures int) {
	log := loggerOrNop(r.logger)
	if withCtx {
		ctx = context.WithoutCancel(ctx)
	}
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		started := r.clock.Now()
		err := revert(ctx, withCtx, op, m)
		finished := r.clock.Now()
		if err != nil {
			failures++
			log.Warn(ctx, "rollback failed", r.kind, r.name, "operation", op.Name(), "token", m.Token(), "error", err)
			m.Note(LevelWarning, op.Name(), "rollback failed: "+err.Error())
		} else {
			log.Debug(ctx, "operation rolled back", r.kind, r.name, "operation", op.Name(), "token", m.Token())
		}
		rolled = append(rolled, op.Name())
		if r.observer != nil {
			r.observer.rolledBack(ctx, RollbackEvent{Pipeline: r.name, Operation: op.Name(), Error: err, Duration: finished.Sub(started), Timestamp: finished})
		}
	}
	return rolled, failures
}

func (r *runner) notify(ctx context.Context, event OperationEvent) {
	if r.observer != nil {
		r.observer.operationDone(ctx, event)
	}
}

func invoke(ctx context.Context, withCtx bool, op Operation, m *Message) (err error) {
	defer recoverFromPanic(&err, op.Name())
	if withCtx {
		if c, ok := op.(ContextOperation); ok {
			return c.ExecuteContext(ctx, m)
		}
	}
	return op.Execute(m)
}

func revert(ctx context.Context, withCtx bool, op Operation, m *Message) (err error) {
	defer recoverFromPanic(&err, op.Name())
	if withCtx {
		if c, ok := op.(ContextOperation); ok {
			return c.RollbackContext(ctx, m)
		}
	}
	return op.Rollback(m)
}
