package emit

// Emitter receives observability events from workflow execution.
//
// Implementations should be:
//   - Non-blocking: never slow down the run loop
//   - Thread-safe: events may arrive from concurrent runs
//   - Resilient: a failing backend must not crash the workflow
//
// Emit must not panic; internal errors should be swallowed or logged.
type Emitter interface {
	Emit(event Event)
}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// Emit delivers the event to every emitter in the slice.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
