package chainz

import (
	"time"

	"github.com/zoobzio/hookz"
)

// Hook event keys.
const (
	PipelineEventOperationComplete = hookz.Key("pipeline.operation_complete")
	PipelineEventRollback          = hookz.Key("pipeline.rollback")
	PipelineEventComplete          = hookz.Key("pipeline.complete")
)

// OperationEvent is emitted after each operation is dispatched or skipped.
type OperationEvent struct {
	Timestamp time.Time
	Error     error // unexpected error returned or raised by the operation
	Pipeline  Name
	Operation Name
	Index     int
	Duration  time.Duration
	Executed  bool
	Skipped   bool
	Faulty    bool // fault state of the message after this operation
}

// RollbackEvent is emitted after each compensation attempt.
type RollbackEvent struct {
	Timestamp time.Time
	Error     error
	Pipeline  Name
	Operation Name
	Duration  time.Duration
}

// CompleteEvent is emitted once per run with its final report.
type CompleteEvent struct {
	Report Report
	Error  error
}
