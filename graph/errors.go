package graph

import (
	"errors"
	"fmt"
)

// ErrMaxStepsExceeded indicates that a run reached the maximum allowed step
// count without hitting a terminal stage. This is the runtime backstop behind
// the construction-time cycle validation.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrNoRoute indicates that a router returned a label with no matching edge.
var ErrNoRoute = errors.New("no edge for routed label")

// EngineError is a typed engine failure carrying a machine-readable code.
//
// Codes used by the engine:
//   - INVALID_GRAPH: graph failed construction-time validation
//   - STAGE_ERROR: a stage returned an unrecovered error
//   - STAGE_TIMEOUT: a stage exceeded its configured timeout
//   - STAGE_PANIC: a stage panicked
//   - NO_ROUTE: a router produced an unknown edge label
//   - MAX_STEPS: the step ceiling was reached
//   - CHECKPOINT: a checkpoint could not be loaded for resumption
type EngineError struct {
	Message string
	Code    string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *EngineError) Unwrap() error { return e.Err }
