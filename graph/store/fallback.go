package store

import "github.com/odevai/tutorflow/graph/emit"

// Fallback selects the durable store when it came up cleanly, and otherwise
// degrades to an in-memory store so the workflow keeps running unpersisted.
//
// Typical wiring:
//
//	durable, err := store.NewSQLiteStore[WorkflowState](path)
//	checkpoints := store.Fallback[WorkflowState](durable, err, emitter)
func Fallback[S any](durable Store[S], err error, emitter emit.Emitter) Store[S] {
	if err == nil && durable != nil {
		return durable
	}
	if emitter != nil {
		meta := map[string]interface{}{}
		if err != nil {
			meta["error"] = err.Error()
		}
		emitter.Emit(emit.Event{
			Msg:  "checkpoint_store_fallback",
			Meta: meta,
		})
	}
	return NewMemStore[S]()
}
