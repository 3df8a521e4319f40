package chainz

import "context"

// Name is a type alias for operation, scope and pipeline names.
// Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    ReserveStockName Name = "reserve-stock"
//	    ChargeCardName   Name = "charge-card"
//	)
type Name = string

// Operation is a single unit of work run by a Pipeline or Scope.
//
// Execute reports expected failures by faulting the message (Message.Fail),
// never by returning an error. A returned error, like a panic, is treated as
// unexpected. Rollback is best-effort compensation and may be a no-op.
//
// Required is decided at construction and must not change afterwards.
// Instances may be shared between runs as long as all per-run state lives in
// the Message.
type Operation interface {
	Name() Name
	Required() bool
	Execute(*Message) error
	Rollback(*Message) error
}

// ContextOperation is implemented by operations that want the run's context.
// RunContext checks every operation for it and falls back to Execute and
// Rollback when it is absent.
type ContextOperation interface {
	Operation
	ExecuteContext(context.Context, *Message) error
	RollbackContext(context.Context, *Message) error
}

// Runner is the surface a telemetry or transport wrapper needs from a
// pipeline. *Pipeline implements it.
type Runner interface {
	Name() Name
	Len() int
	RunContext(context.Context, *Message) (*Report, error)
}
