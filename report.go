package chainz

import "time"

// State is the lifecycle position of a run.
type State int

// Run states. A Report starts Ready, is Running while operations are
// dispatched and ends Completed or Faulted.
const (
	StateReady State = iota
	StateRunning
	StateCompleted
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Report summarizes one run. It carries everything a tracing or metrics
// wrapper needs without the core depending on any telemetry library.
type Report struct {
	Started        time.Time
	Pipeline       Name
	Token          string
	FirstError     string
	Executed       []Name
	Skipped        []Name
	RolledBack     []Name
	Operations     int
	RollbackErrors int
	Duration       time.Duration
	State          State
	Faulty         bool
	Aborted        bool
}

// Succeeded reports whether the run completed without a fault.
func (r *Report) Succeeded() bool {
	return r != nil && r.State == StateCompleted
}
