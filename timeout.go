package chainz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// TimeoutOperation bounds a ContextOperation with a deadline.
//
// The wrapped operation runs on the caller's goroutine with a deadline
// context, so it must honour ctx to stop early. When the deadline has passed
// on return, the result is an unexpected error wrapping
// context.DeadlineExceeded. Plain Operations have no context to observe and
// run unbounded.
//
//	lookup := chainz.Timeout(fetchCustomer, 2*time.Second)
type TimeoutOperation struct {
	op       Operation
	mu       sync.RWMutex
	duration time.Duration
}

// Timeout wraps op with a deadline of d.
func Timeout(op Operation, d time.Duration) *TimeoutOperation {
	return &TimeoutOperation{op: op, duration: d}
}

// SetDuration updates the deadline.
func (t *TimeoutOperation) SetDuration(d time.Duration) *TimeoutOperation {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = d
	return t
}

// Duration returns the deadline.
func (t *TimeoutOperation) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.duration
}

func (t *TimeoutOperation) Name() Name     { return t.op.Name() }
func (t *TimeoutOperation) Required() bool { return t.op.Required() }

func (t *TimeoutOperation) Execute(m *Message) error {
	return t.ExecuteContext(context.Background(), m)
}

func (t *TimeoutOperation) ExecuteContext(ctx context.Context, m *Message) error {
	ctx, cancel := context.WithTimeout(ctx, t.Duration())
	defer cancel()

	err := invoke(ctx, true, t.op, m)
	if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %v: %w", t.op.Name(), t.Duration(), context.DeadlineExceeded)
	}
	return fmt.Errorf("%s timed out after %v: %w: %w", t.op.Name(), t.Duration(), context.DeadlineExceeded, err)
}

func (t *TimeoutOperation) Rollback(m *Message) error {
	return revert(context.Background(), false, t.op, m)
}

func (t *TimeoutOperation) RollbackContext(ctx context.Context, m *Message) error {
	return revert(ctx, true, t.op, m)
}
