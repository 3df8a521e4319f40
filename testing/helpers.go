// Package testing provides test utilities for chainz pipelines.
//
// It includes a configurable mock operation, a shared journal for asserting
// the global order of executions and compensations, assertion helpers and a
// chaos operation for resilience tests.
//
// Example usage:
//
//	func TestCheckout(t *testing.T) {
//		journal := chainztest.NewJournal()
//		reserve := chainztest.NewMockOperation(t, "reserve").WithJournal(journal)
//		charge := chainztest.NewMockOperation(t, "charge").WithJournal(journal).WithFault("declined")
//
//		_, err := chainz.NewPipeline("checkout", reserve, charge).Run(chainz.NewMessage())
//		require.NoError(t, err)
//
//		journal.AssertOrder(t, "execute:reserve", "execute:charge", "rollback:charge", "rollback:reserve")
//	}
package testing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	mathrand "math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoobzio/chainz"
)

// Journal records executions and rollbacks across many operations in the
// order they happened. Entries read "execute:<name>" and "rollback:<name>".
type Journal struct {
	entries []string
	mu      sync.Mutex
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record appends an entry.
func (j *Journal) Record(kind string, name chainz.Name) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, kind+":"+name)
}

// Entries returns a copy of all entries.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

// Executed returns the names of executed operations in order.
func (j *Journal) Executed() []chainz.Name {
	return j.filter("execute")
}

// RolledBack returns the names of rolled back operations in order.
func (j *Journal) RolledBack() []chainz.Name {
	return j.filter("rollback")
}

func (j *Journal) filter(kind string) []chainz.Name {
	j.mu.Lock()
	defer j.mu.Unlock()
	prefix := kind + ":"
	var names []chainz.Name
	for _, e := range j.entries {
		if len(e) > len(prefix) && e[:len(prefix)] == prefix {
			names = append(names, e[len(prefix):])
		}
	}
	return names
}

// Reset clears the journal.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = nil
}

// AssertOrder verifies the journal holds exactly the expected entries.
func (j *Journal) AssertOrder(t *testing.T, expected ...string) {
	t.Helper()
	actual := j.Entries()
	if !slices.Equal(actual, expected) {
		t.Errorf("expected journal %v, got %v", expected, actual)
	}
}

// MockOperation is a configurable chainz.ContextOperation. It counts calls,
// optionally records them in a Journal and can fault, lock, fail, panic or
// delay on demand.
type MockOperation struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	t             *testing.T
	name          string
	journal       *Journal
	executeCount  int64
	rollbackCount int64
	required      bool
	lock          bool
	fault         string
	returnErr     error
	rollbackErr   error
	panicMsg      string
	delay         time.Duration
	exec          func(*chainz.Message)
	lastContext   context.Context
	mu            sync.RWMutex
}

// NewMockOperation creates a mock that succeeds without touching the message.
func NewMockOperation(t *testing.T, name string) *MockOperation {
	return &MockOperation{t: t, name: name}
}

// WithJournal records executions and rollbacks in j.
func (m *MockOperation) WithJournal(j *Journal) *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = j
	return m
}

// WithRequired sets the required flag.
func (m *MockOperation) WithRequired(required bool) *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.required = required
	return m
}

// WithFault makes Execute fault the message with text.
func (m *MockOperation) WithFault(text string) *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = text
	return m
}

// WithLock makes Execute lock the message.
func (m *MockOperation) WithLock() *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lock = true
	return m
}

// WithError makes Execute return err.
func (m *MockOperation) WithError(err error) *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.returnErr = err
	return m
}

// WithRollbackError makes Rollback return err.
func (m *MockOperation) WithRollbackError(err error) *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackErr = err
	return m
}

// WithPanic makes Execute panic with msg.
func (m *MockOperation) WithPanic(msg string) *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicMsg = msg
	return m
}

// WithDelay makes Execute wait d, or until the context is done.
func (m *MockOperation) WithDelay(d time.Duration) *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithExec runs fn against the message on every successful Execute.
func (m *MockOperation) WithExec(fn func(*chainz.Message)) *MockOperation {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exec = fn
	return m
}

// Name returns the mock name.
func (m *MockOperation) Name() chainz.Name {
	return m.name
}

// Required returns the configured flag.
func (m *MockOperation) Required() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.required
}

// Execute runs the configured behavior without a context.
func (m *MockOperation) Execute(msg *chainz.Message) error {
	return m.ExecuteContext(context.Background(), msg)
}

// ExecuteContext records the call and runs the configured behavior.
func (m *MockOperation) ExecuteContext(ctx context.Context, msg *chainz.Message) error {
	atomic.AddInt64(&m.executeCount, 1)

	m.mu.Lock()
	m.lastContext = ctx
	journal := m.journal
	delay := m.delay
	panicMsg := m.panicMsg
	returnErr := m.returnErr
	fault := m.fault
	lock := m.lock
	exec := m.exec
	m.mu.Unlock()

	if journal != nil {
		journal.Record("execute", m.name)
	}
	if panicMsg != "" {
		panic(panicMsg)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if returnErr != nil {
		return returnErr
	}
	if exec != nil {
		exec(msg)
	}
	if lock {
		msg.Lock()
	}
	if fault != "" {
		msg.Fail(fault)
	}
	return nil
}

// Rollback records the compensation.
func (m *MockOperation) Rollback(msg *chainz.Message) error {
	return m.RollbackContext(context.Background(), msg)
}

// RollbackContext records the compensation.
func (m *MockOperation) RollbackContext(ctx context.Context, _ *chainz.Message) error {
	atomic.AddInt64(&m.rollbackCount, 1)
	m.mu.Lock()
	m.lastContext = ctx
	journal := m.journal
	err := m.rollbackErr
	m.mu.Unlock()
	if journal != nil {
		journal.Record("rollback", m.name)
	}
	return err
}

// ExecuteCount returns the number of Execute calls.
func (m *MockOperation) ExecuteCount() int {
	return int(atomic.LoadInt64(&m.executeCount))
}

// RollbackCount returns the number of Rollback calls.
func (m *MockOperation) RollbackCount() int {
	return int(atomic.LoadInt64(&m.rollbackCount))
}

// LastContext returns the context of the most recent call.
func (m *MockOperation) LastContext() context.Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastContext
}

// Reset clears the call counters.
func (m *MockOperation) Reset() {
	atomic.StoreInt64(&m.executeCount, 0)
	atomic.StoreInt64(&m.rollbackCount, 0)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastContext = nil
}

// Assertion Helpers

// AssertExecuted verifies that a mock operation was executed exactly n times.
func AssertExecuted(t *testing.T, mock *MockOperation, expectedCalls int) {
	t.Helper()
	if actual := mock.ExecuteCount(); actual != expectedCalls {
		t.Errorf("expected mock operation %s to be executed %d times, but was executed %d times",
			mock.name, expectedCalls, actual)
	}
}

// AssertNotExecuted verifies that a mock operation was never executed.
func AssertNotExecuted(t *testing.T, mock *MockOperation) {
	t.Helper()
	AssertExecuted(t, mock, 0)
}

// AssertRolledBack verifies that a mock operation was rolled back exactly n times.
func AssertRolledBack(t *testing.T, mock *MockOperation, expectedCalls int) {
	t.Helper()
	if actual := mock.RollbackCount(); actual != expectedCalls {
		t.Errorf("expected mock operation %s to be rolled back %d times, but was rolled back %d times",
			mock.name, expectedCalls, actual)
	}
}

// AssertNotRolledBack verifies that a mock operation was never rolled back.
func AssertNotRolledBack(t *testing.T, mock *MockOperation) {
	t.Helper()
	AssertRolledBack(t, mock, 0)
}

// ChaosOperation injects failures into a wrapped operation for resilience
// tests: unexpected errors, faults and panics at configured rates.
type ChaosOperation struct { //nolint:govet // fieldalignment: Test helper struct optimized for functionality over memory efficiency
	wrapped     chainz.Operation
	failureRate float64
	faultRate   float64
	panicRate   float64
	rng         *mathrand.Rand
	mu          sync.Mutex
	totalCalls  int64
	failedCalls int64
	faultCalls  int64
	panicCalls  int64
}

// ChaosConfig holds configuration for chaos testing.
type ChaosConfig struct {
	FailureRate float64 // Probability of returning an error (0.0 to 1.0)
	FaultRate   float64 // Probability of faulting the message (0.0 to 1.0)
	PanicRate   float64 // Probability of panicking (0.0 to 1.0)
	Seed        int64   // Random seed for reproducible chaos (0 for random seed)
}

// NewChaosOperation wraps an operation with chaos injection.
func NewChaosOperation(wrapped chainz.Operation, config ChaosConfig) *ChaosOperation {
	seed := config.Seed
	if seed == 0 {
		var seedBytes [8]byte
		if _, err := rand.Read(seedBytes[:]); err != nil {
			seed = time.Now().UnixNano()
		} else {
			for _, b := range seedBytes {
				seed = seed<<8 | int64(b)
			}
		}
	}
	return &ChaosOperation{
		wrapped:     wrapped,
		failureRate: config.FailureRate,
		faultRate:   config.FaultRate,
		panicRate:   config.PanicRate,
		rng:         mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // G404: Test utility uses weak RNG for deterministic chaos scenarios
	}
}

// Name returns the wrapped operation's name.
func (c *ChaosOperation) Name() chainz.Name {
	return c.wrapped.Name()
}

// Required returns the wrapped operation's flag.
func (c *ChaosOperation) Required() bool {
	return c.wrapped.Required()
}

// Execute runs the wrapped operation with chaos injection.
func (c *ChaosOperation) Execute(msg *chainz.Message) error {
	atomic.AddInt64(&c.totalCalls, 1)

	c.mu.Lock()
	doPanic := c.rng.Float64() < c.panicRate
	doFail := c.rng.Float64() < c.failureRate
	doFault := c.rng.Float64() < c.faultRate
	c.mu.Unlock()

	if doPanic {
		atomic.AddInt64(&c.panicCalls, 1)
		panic("chaos operation induced panic")
	}
	if err := c.wrapped.Execute(msg); err != nil {
		return err
	}
	if doFail {
		atomic.AddInt64(&c.failedCalls, 1)
		return errors.New("chaos operation induced failure")
	}
	if doFault {
		atomic.AddInt64(&c.faultCalls, 1)
		msg.Fail(fmt.Sprintf("chaos fault in %s", c.wrapped.Name()))
	}
	return nil
}

// Rollback delegates to the wrapped operation.
func (c *ChaosOperation) Rollback(msg *chainz.Message) error {
	return c.wrapped.Rollback(msg)
}

// Stats returns statistics about chaos injection.
func (c *ChaosOperation) Stats() ChaosStats {
	return ChaosStats{
		TotalCalls:  atomic.LoadInt64(&c.totalCalls),
		FailedCalls: atomic.LoadInt64(&c.failedCalls),
		FaultCalls:  atomic.LoadInt64(&c.faultCalls),
		PanicCalls:  atomic.LoadInt64(&c.panicCalls),
	}
}

// ChaosStats holds statistics about chaos injection.
type ChaosStats struct {
	TotalCalls  int64
	FailedCalls int64
	FaultCalls  int64
	PanicCalls  int64
}

// FailureRate returns the observed unexpected-error rate.
func (s ChaosStats) FailureRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.FailedCalls) / float64(s.TotalCalls)
}

// FaultRate returns the observed fault rate.
func (s ChaosStats) FaultRate() float64 {
	if s.TotalCalls == 0 {
		return 0
	}
	return float64(s.FaultCalls) / float64(s.TotalCalls)
}
