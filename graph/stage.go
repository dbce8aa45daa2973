package graph

import "context"

// Stage is a single unit of work in a workflow.
//
// A stage receives the full accumulated state and returns a *partial* state
// (delta) containing only the fields it produced. The engine merges the delta
// into the accumulated state with the workflow's Reducer; stages never write
// the accumulated state directly.
//
// Stages should respect ctx cancellation on blocking calls. A returned error
// aborts the run unless the stage is wrapped with WithRecovery or
// WithRetryMark, which convert failures into state deltas so routing can
// decide what happens next.
type Stage[S any] func(ctx context.Context, state S) (S, error)

// Router selects the outgoing edge label for a stage after its delta has been
// merged. The returned label is looked up in the engine's edge table.
//
// Routers must be pure functions of the state: no I/O, no side effects. All
// branching decisions in a workflow live in routers, not in stages.
type Router[S any] func(state S) string

// Always returns a router that unconditionally selects the given label.
// Useful for stages with a single outgoing edge.
func Always[S any](label string) Router[S] {
	return func(S) string { return label }
}
