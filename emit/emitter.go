// Package emit provides event emission and observability for workflow
// execution.
package emit

import "context"

// Emitter receives observability events from the scheduler and executor.
//
// Emitters enable pluggable observability backends: stdout/file logging,
// OpenTelemetry tracing, in-memory capture for tests, or nothing at all.
//
// Implementations must be:
//   - Non-blocking: do not slow down workflow execution.
//   - Thread-safe: Emit may be called concurrently from parallel nodes.
//   - Resilient: a failing backend must not crash the workflow.
type Emitter interface {
	// Emit sends one event to the configured backend. Emit must not panic;
	// backend errors should be handled internally (dropped or logged).
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving order.
	// Returns an error only on catastrophic failure; individual event
	// failures should be handled internally.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush blocks until buffered events have been delivered, the context
	// is cancelled, or delivery fails. Safe to call multiple times.
	Flush(ctx context.Context) error
}
