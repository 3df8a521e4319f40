package chainz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

// RetryOperation re-executes an operation that returned an unexpected error.
// A fault raised through the message is a business result and is never
// retried.
//
// Rollback and Required delegate to the wrapped operation.
//
//	charge := chainz.Retry(chargeCard, 3)
type RetryOperation struct {
	op          Operation
	mu          sync.RWMutex
	maxAttempts int
}

// Retry wraps op with up to attempts executions. attempts below 1 is treated
// as 1.
func Retry(op Operation, attempts int) *RetryOperation {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryOperation{op: op, maxAttempts: attempts}
}

// SetMaxAttempts updates the maximum number of attempts.
func (r *RetryOperation) SetMaxAttempts(n int) *RetryOperation {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maxAttempts = n
	return r
}

// MaxAttempts returns the current maximum number of attempts.
func (r *RetryOperation) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.maxAttempts
}

func (r *RetryOperation) Name() Name     { return r.op.Name() }
func (r *RetryOperation) Required() bool { return r.op.Required() }

func (r *RetryOperation) Execute(m *Message) error {
	return r.execute(context.Background(), false, m)
}

func (r *RetryOperation) ExecuteContext(ctx context.Context, m *Message) error {
	return r.execute(ctx, true, m)
}

func (r *RetryOperation) Rollback(m *Message) error {
	return revert(context.Background(), false, r.op, m)
}

func (r *RetryOperation) RollbackContext(ctx context.Context, m *Message) error {
	return revert(ctx, true, r.op, m)
}

func (r *RetryOperation) execute(ctx context.Context, withCtx bool, m *Message) error {
	attempts := r.MaxAttempts()
	var lastErr error
	for i := 0; i < attempts; i++ {
		if withCtx && ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = invoke(ctx, withCtx, r.op, m)
		if lastErr == nil || m.Faulty() {
			return lastErr
		}
	}
	return fmt.Errorf("%d attempts: %w", attempts, lastErr)
}

// BackoffOperation retries with exponential delay: base, 2*base, 4*base and
// so on. Cancellation of the run aborts the wait.
//
// The total wait grows quickly. With base=1s and 5 attempts the delays are
// 1s, 2s, 4s and 8s.
type BackoffOperation struct {
	op          Operation
	clock       clockz.Clock
	baseDelay   time.Duration
	mu          sync.RWMutex
	maxAttempts int
}

// Backoff wraps op with up to attempts executions spaced by exponential
// delays starting at base.
func Backoff(op Operation, attempts int, base time.Duration) *BackoffOperation {
	if attempts < 1 {
		attempts = 1
	}
	return &BackoffOperation{op: op, maxAttempts: attempts, baseDelay: base}
}

// WithClock sets a custom clock for testing.
func (b *BackoffOperation) WithClock(clock clockz.Clock) *BackoffOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = clock
	return b
}

// SetBaseDelay updates the base delay.
func (b *BackoffOperation) SetBaseDelay(d time.Duration) *BackoffOperation {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseDelay = d
	return b
}

// BaseDelay returns the base delay.
func (b *BackoffOperation) BaseDelay() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.baseDelay
}

// MaxAttempts returns the attempt limit.
func (b *BackoffOperation) MaxAttempts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.maxAttempts
}

func (b *BackoffOperation) getClock() clockz.Clock {
	if b.clock == nil {
		return clockz.RealClock
	}
	return b.clock
}

func (b *BackoffOperation) Name() Name     { return b.op.Name() }
func (b *BackoffOperation) Required() bool { return b.op.Required() }

func (b *BackoffOperation) Execute(m *Message) error {
	return b.execute(context.Background(), false, m)
}

func (b *BackoffOperation) ExecuteContext(ctx context.Context, m *Message) error {
	return b.execute(ctx, true, m)
}

func (b *BackoffOperation) Rollback(m *Message) error {
	return revert(context.Background(), false, b.op, m)
}

func (b *BackoffOperation) RollbackContext(ctx context.Context, m *Message) error {
	return revert(ctx, true, b.op, m)
}

func (b *BackoffOperation) execute(ctx context.Context, withCtx bool, m *Message) error {
	b.mu.RLock()
	attempts := b.maxAttempts
	delay := b.baseDelay
	clock := b.getClock()
	b.mu.RUnlock()

	var lastErr error
	for i := 0; i < attempts; i++ {
		lastErr = invoke(ctx, withCtx, b.op, m)
		if lastErr == nil || m.Faulty() {
			return lastErr
		}
		if i == attempts-1 {
			break
		}
		if withCtx {
			select {
			case <-clock.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("backoff interrupted: %w", ctx.Err())
			}
		} else {
			<-clock.After(delay)
		}
		delay *= 2
	}
	return fmt.Errorf("%d attempts: %w", attempts, lastErr)
}
