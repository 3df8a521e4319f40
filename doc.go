// Package chainz provides a sequential operation runtime with fault
// short-circuiting, compensating rollback, nested scopes and a statically
// typed pipeline variant.
//
// # Overview
//
// A Pipeline owns an ordered list of Operations and runs them, one at a time,
// against a single *Message. The Message is the execution context of one run:
// a content bag holding at most one value per Go type, a correlation token,
// an append-only list of notices, a fault flag and a lock flag.
//
//	msg := chainz.NewMessage()
//	chainz.Put(msg, Order{ID: "o-1"})
//
//	pipeline := chainz.NewPipeline("checkout",
//	    reserveStock,
//	    chargeCard,
//	    chainz.Effect("audit", audit, chainz.AsRequired()),
//	)
//	report, err := pipeline.Run(msg)
//
// # Faults and Locks
//
// Operations report expected failures by calling msg.Fail. A faulty message
// stops the pipeline (BreakOnFail, the default) and triggers rollback of every
// operation that executed, in reverse order. The fault flag never resets.
//
// Any operation may call msg.Lock. A locked message only runs operations
// built with AsRequired; everything else is skipped and therefore never
// rolled back.
//
// Returned errors and panics are unexpected. They are logged and converted
// into a fault, or returned to the caller wrapped in *Error when the pipeline
// is configured with AllowPropagateError.
//
// # Cancellation
//
// RunContext is the cancellable orchestrator. It checks the context before
// dispatching each operation and prefers ExecuteContext on operations that
// implement ContextOperation. A cancelled run dispatches nothing further and
// rolls back as on a fault. Rollback itself ignores cancellation.
//
// # Scopes
//
// A Scope is an Operation that contains operations. Its history is private, so
// the parent pipeline sees it as one unit and rolling it back replays its own
// history in reverse:
//
//	payment := chainz.NewScope("payment", authorize, capture)
//	pipeline := chainz.NewPipeline("order", validate, payment, ship)
//
// # Typed Pipelines
//
// Typed[In, Out] trades the open content bag for compile-time checked
// signatures. Operations receive the pipeline input and return Result[Out]:
//
//	quote := chainz.NewTyped[OrderRequest, OrderReceipt]("quote")
//	quote.AddFunc("price", price)
//	result := quote.Run(ctx, req)
//
// Adapt registers operations declared over narrower types, Then chains typed
// pipelines end to end, and Bind embeds a typed pipeline in an untyped one.
//
// # Related Packages
//
// The core depends on no telemetry, storage or configuration library.
// Supporting packages live beside it:
//
//   - logging adapts zerolog to Logger.
//   - telemetry wraps any Runner with tracez/metricz or OpenTelemetry spans.
//   - persist stores per-token values and exposes read and write operations.
//   - config builds pipelines from YAML definitions.
//   - testing offers mock operations and a shared execution journal.
package chainz
