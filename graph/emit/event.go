// Package emit provides observability events for workflow execution.
package emit

// Event is an observability event emitted during workflow execution.
//
// Events cover stage completion, checkpoint writes and failures, and
// workflow-level transitions. They are delivered to an Emitter, which may log
// them, turn them into spans, or drop them.
type Event struct {
	// RunID identifies the workflow execution (thread id or analysis id).
	RunID string

	// Step is the sequential hop number in the run (1-indexed).
	// Zero for events not tied to a hop.
	Step int

	// Stage names the stage this event concerns. Empty for run-level events.
	Stage string

	// Msg is a short machine-friendly event name, e.g. "stage_completed",
	// "checkpoint_failed".
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": execution duration in milliseconds
	//   - "error": error details
	//   - "status": workflow status after the stage
	//   - "analysis_id": the run's analysis identifier
	Meta map[string]interface{}
}
