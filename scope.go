package chainz

import (
	"context"
	"slices"
	"sync"

	"github.com/zoobzio/clockz"
)

// Scope is a sub-pipeline usable as a single operation. It applies the same
// lock and fault rules as Pipeline to its own operations.
//
// The parent only records the scope as one history entry. The scope's own
// history is kept in the Message, keyed by the scope, so rolling back the
// scope entry compensates the operations that ran inside it in reverse order.
// A Scope is never required.
//
// Unexpected errors inside the scope fault the message, unless
// AllowPropagateError is set. Then the scope rolls back what it executed and
// returns the error to the parent, which handles it like any other
// unexpected error.
//
// Running the same Scope value twice within one run replaces the first
// recorded history; nest distinct Scope values instead.
type Scope struct {
	logger        Logger
	clock         clockz.Clock
	name          Name
	operations    []Operation
	mu            sync.RWMutex
	breakOnFail   bool
	forceRollback bool
	propagate     bool
}

// NewScope creates a Scope with the given operations.
func NewScope(name Name, operations ...Operation) *Scope {
	return &Scope{
		name:        name,
		operations:  slices.Clone(operations),
		breakOnFail: true,
	}
}

// BreakOnFail controls whether a fault stops the scope's loop. Defaults to true.
func (s *Scope) BreakOnFail(enabled bool) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakOnFail = enabled
	return s
}

// ForceRollbackOnFailure includes operations that ran after the fault point
// when the scope is rolled back.
func (s *Scope) ForceRollbackOnFailure(enabled bool) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceRollback = enabled
	return s
}

// AllowPropagateError returns unexpected errors to the parent.
func (s *Scope) AllowPropagateError(enabled bool) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.propagate = enabled
	return s
}

// WithLogger sets the logger.
func (s *Scope) WithLogger(logger Logger) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
	return s
}

// WithClock sets the clock used for timing.
func (s *Scope) WithClock(clock clockz.Clock) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

// Register appends operations to the scope.
func (s *Scope) Register(operations ...Operation) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations = append(s.operations, operations...)
	return s
}

// Name returns the scope name.
func (s *Scope) Name() Name {
	return s.name
}

// Required is always false.
func (*Scope) Required() bool {
	return false
}

// Len returns the number of operations.
func (s *Scope) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.operations)
}

// Names returns the operation names in order.
func (s *Scope) Names() []Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]Name, len(s.operations))
	for i, op := range s.operations {
		names[i] = op.Name()
	}
	return names
}

func (s *Scope) runner() *runner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clock := s.clock
	if clock == nil {
		clock = clockz.RealClock
	}
	return &runner{
		name:          s.name,
		kind:          "scope",
		logger:        s.logger,
		clock:         clock,
		breakOnFail:   s.breakOnFail,
		forceRollback: s.forceRollback,
		propagate:     s.propagate,
	}
}

// Execute runs the scope's operations synchronously.
func (s *Scope) Execute(m *Message) error {
	return s.execute(context.Background(), false, m)
}

// ExecuteContext runs the scope's operations with cancellation.
func (s *Scope) ExecuteContext(ctx context.Context, m *Message) error {
	return s.execute(ctx, true, m)
}

func (s *Scope) execute(ctx context.Context, withCtx bool, m *Message) error {
	if m == nil {
		return ErrNilMessage
	}
	r := s.runner()
	s.mu.RLock()
	ops := slices.Clone(s.operations)
	s.mu.RUnlock()

	h := newHistory(m)
	m.SetRunState(s, h)
	out := r.run(ctx, withCtx, m, ops, h)
	if out.aborted {
		loggerOrNop(r.logger).Warn(ctx, "scope aborted", "scope", r.name, "token", m.Token())
	}
	if out.err != nil {
		// Already compensated inside the scope.
		*h = history{faultMark: -1}
		return out.err
	}
	return nil
}

// Rollback compensates the operations the scope executed in this run.
func (s *Scope) Rollback(m *Message) error {
	return s.revert(context.Background(), false, m)
}

// RollbackContext compensates the operations the scope executed in this run.
func (s *Scope) RollbackContext(ctx context.Context, m *Message) error {
	return s.revert(ctx, true, m)
}

func (s *Scope) revert(ctx context.Context, withCtx bool, m *Message) error {
	if m == nil {
		return ErrNilMessage
	}
	v, ok := m.RunState(s)
	if !ok {
		return nil
	}
	h := v.(*history)
	r := s.runner()
	r.rollback(ctx, withCtx, m, h.targets(r.forceRollback))
	m.SetRunState(s, &history{faultMark: -1})
	return nil
}
