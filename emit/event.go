package emit

// Event is an observability event emitted during workflow execution.
//
// Events describe the scheduler's progress through a run:
//   - workflow_start / workflow_end
//   - level_start / level_end
//   - node_start / node_retry / node_end / node_skipped
//
// Events are delivered to an Emitter, which can log them, turn them into
// OpenTelemetry spans, buffer them for inspection, or drop them.
type Event struct {
	// ExecutionID identifies the workflow execution that emitted this event.
	ExecutionID string

	// Level is the topological level being executed when the event fired.
	// Zero-indexed; -1 for workflow-level events (start, end).
	Level int

	// NodeID identifies which node the event concerns.
	// Empty for workflow- and level-scoped events.
	NodeID string

	// Msg names the event, e.g. "node_start", "node_end", "workflow_end".
	Msg string

	// Meta carries additional structured data specific to this event.
	// Common keys:
	//   - "duration_ms": execution duration in milliseconds
	//   - "error": error details
	//   - "attempt": retry attempt number
	//   - "status": terminal node or workflow status
	Meta map[string]any
}
