package chainz

import "context"

// WhenOperation runs an operation only when a condition holds.
//
// Whether the operation ran is recorded in the message, so rollback
// compensates only an operation that actually executed and the decorator
// itself stays free of per-run state.
//
//	loyalty := chainz.When("loyalty-points", isMember, awardPoints)
type WhenOperation struct {
	op   Operation
	cond func(*Message) bool
	name Name
}

// When wraps op behind cond.
func When(name Name, cond func(*Message) bool, op Operation) *WhenOperation {
	return &WhenOperation{name: name, cond: cond, op: op}
}

func (w *WhenOperation) Name() Name     { return w.name }
func (w *WhenOperation) Required() bool { return w.op.Required() }

func (w *WhenOperation) Execute(m *Message) error {
	return w.execute(context.Background(), false, m)
}

func (w *WhenOperation) ExecuteContext(ctx context.Context, m *Message) error {
	return w.execute(ctx, true, m)
}

func (w *WhenOperation) execute(ctx context.Context, withCtx bool, m *Message) error {
	if !w.cond(m) {
		m.SetRunState(w, false)
		return nil
	}
	m.SetRunState(w, true)
	return invoke(ctx, withCtx, w.op, m)
}

func (w *WhenOperation) Rollback(m *Message) error {
	return w.revert(context.Background(), false, m)
}

func (w *WhenOperation) RollbackContext(ctx context.Context, m *Message) error {
	return w.revert(ctx, true, m)
}

func (w *WhenOperation) revert(ctx context.Context, withCtx bool, m *Message) error {
	v, _ := m.RunState(w)
	if ran, _ := v.(bool); !ran {
		return nil
	}
	return revert(ctx, withCtx, w.op, m)
}
