// Package graph provides the core workflow execution engine for TutorFlow.
package graph

import (
	"encoding/json"
	"fmt"
)

// Reducer merges a stage's partial output (delta) into the accumulated state.
//
// The reducer defines the merge semantics for the workflow: which fields a
// delta may overwrite, how counters accumulate, and which fields are
// append-only. It must be a pure function of its inputs.
//
// Properties a reducer should satisfy:
//   - Deterministic: same inputs always produce the same output
//   - Non-mutating: neither prev nor delta is modified
//   - Idempotent for repeated deltas: Reduce(Reduce(s, d), d) == Reduce(s, d)
//
// Type parameter S is the workflow state type.
type Reducer[S any] func(prev, delta S) S

// DeepCopy returns an independent copy of a state value via a JSON round-trip.
//
// The state type must be JSON-serializable (exported fields). The engine
// itself never mutates a state after handing it out, so it does not copy;
// DeepCopy is for callers that retain a state value (e.g. a streamed
// StepEvent) and want to mutate it without aliasing the original's slices
// and maps.
func DeepCopy[S any](state S) (S, error) {
	var out S
	data, err := json.Marshal(state)
	if err != nil {
		return out, fmt.Errorf("deep copy marshal: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("deep copy unmarshal: %w", err)
	}
	return out, nil
}
