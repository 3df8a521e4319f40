package chainz

import "context"

// HandleOperation observes failures of a wrapped operation.
//
// When the operation faults the message or returns an unexpected error, the
// handler runs with the message. The fault and the error pass through
// unchanged; a handler error is recorded as a warning notice.
//
//	charge := chainz.Handle(chargeCard, func(ctx context.Context, m *chainz.Message) error {
//	    return alerts.Notify(ctx, "charge failed for "+m.Token())
//	})
type HandleOperation struct {
	op      Operation
	handler func(context.Context, *Message) error
}

// Handle wraps op with a failure handler.
func Handle(op Operation, handler func(context.Context, *Message) error) *HandleOperation {
	return &HandleOperation{op: op, handler: handler}
}

func (h *HandleOperation) Name() Name     { return h.op.Name() }
func (h *HandleOperation) Required() bool { return h.op.Required() }

func (h *HandleOperation) Execute(m *Message) error {
	return h.execute(context.Background(), false, m)
}

func (h *HandleOperation) ExecuteContext(ctx context.Context, m *Message) error {
	return h.execute(ctx, true, m)
}

func (h *HandleOperation) execute(ctx context.Context, withCtx bool, m *Message) error {
	wasFaulty := m.Faulty()
	err := invoke(ctx, withCtx, h.op, m)
	if err == nil && (wasFaulty || !m.Faulty()) {
		return nil
	}
	if hErr := h.runHandler(ctx, m); hErr != nil {
		m.Note(LevelWarning, h.op.Name(), "handler failed: "+hErr.Error())
	}
	return err
}

func (h *HandleOperation) runHandler(ctx context.Context, m *Message) (err error) {
	if h.handler == nil {
		return nil
	}
	defer recoverFromPanic(&err, h.op.Name())
	return h.handler(ctx, m)
}

func (h *HandleOperation) Rollback(m *Message) error {
	return revert(context.Background(), false, h.op, m)
}

func (h *HandleOperation) RollbackContext(ctx context.Context, m *Message) error {
	return revert(ctx, true, h.op, m)
}
