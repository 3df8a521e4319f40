package chainz

import "context"

// Base carries the fixed attributes of an operation. Embed it in operation
// types that only need a name, a required flag and a no-op Rollback.
//
//	type reserveStock struct {
//	    chainz.Base
//	    inventory Inventory
//	}
type Base struct {
	name     Name
	required bool
}

// NewBase creates a Base. The required flag cannot change afterwards.
func NewBase(name Name, required bool) Base {
	return Base{name: name, required: required}
}

// Name returns the operation name.
func (b Base) Name() Name {
	return b.name
}

// Required reports whether the operation runs on locked or faulty messages.
func (b Base) Required() bool {
	return b.required
}

// Rollback is a no-op.
func (Base) Rollback(*Message) error {
	return nil
}

// StepOption configures a Step at construction.
type StepOption func(*stepConfig)

type stepConfig struct {
	rollback func(context.Context, *Message) error
	required bool
}

// AsRequired marks the operation as required: it still runs when the message
// is locked, and after a fault when the pipeline does not break on failure.
func AsRequired() StepOption {
	return func(c *stepConfig) {
		c.required = true
	}
}

// WithRollback attaches a compensating function.
func WithRollback(fn func(context.Context, *Message) error) StepOption {
	return func(c *stepConfig) {
		c.rollback = fn
	}
}

// Step is a ContextOperation built from functions. Its configuration is fixed
// at construction, so a Step may be shared between runs.
type Step struct {
	exec     func(context.Context, *Message) error
	rollback func(context.Context, *Message) error
	name     Name
	required bool
}

// NewStep creates a Step around exec.
//
//	charge := chainz.NewStep("charge-card",
//	    func(ctx context.Context, m *chainz.Message) error {
//	        order, _ := chainz.Get[Order](m)
//	        if err := gateway.Charge(ctx, order); err != nil {
//	            m.Failf("charge declined: %v", err)
//	        }
//	        return nil
//	    },
//	    chainz.WithRollback(refund),
//	)
func NewStep(name Name, exec func(context.Context, *Message) error, opts ...StepOption) *Step {
	var cfg stepConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Step{
		name:     name,
		exec:     exec,
		rollback: cfg.rollback,
		required: cfg.required,
	}
}

// Do is shorthand for NewStep.
func Do(name Name, exec func(context.Context, *Message) error, opts ...StepOption) *Step {
	return NewStep(name, exec, opts...)
}

// Name returns the step name.
func (s *Step) Name() Name {
	return s.name
}

// Required reports the required flag.
func (s *Step) Required() bool {
	return s.required
}

// Execute runs the step without a cancellation signal.
func (s *Step) Execute(m *Message) error {
	return s.ExecuteContext(context.Background(), m)
}

// ExecuteContext runs the step.
func (s *Step) ExecuteContext(ctx context.Context, m *Message) error {
	if s.exec == nil {
		return nil
	}
	return s.exec(ctx, m)
}

// Rollback runs the compensating function, if any.
func (s *Step) Rollback(m *Message) error {
	return s.RollbackContext(context.Background(), m)
}

// RollbackContext runs the compensating function, if any.
func (s *Step) RollbackContext(ctx context.Context, m *Message) error {
	if s.rollback == nil {
		return nil
	}
	return s.rollback(ctx, m)
}
