package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/odevai/tutorflow/graph/emit"
	"github.com/odevai/tutorflow/graph/store"
)

// DefaultMaxSteps is the runtime step ceiling applied when no explicit limit
// is configured. Construction-time validation rejects unbounded cycles, so
// this only guards against routers misbehaving at runtime.
const DefaultMaxSteps = 50

// Engine executes a stage graph over a state type S.
//
// A graph consists of named stages, per-stage routers, and a labeled edge
// table (stage, label) -> next stage. Execution is strictly sequential: one
// stage runs at a time, its delta is merged with the Reducer, the state is
// optionally checkpointed, and the stage's router selects the next hop.
// Terminal stages have no router and no outgoing edges; reaching one ends
// the run.
//
// Engine is safe for concurrent Run calls after Validate has succeeded; the
// graph definition itself must not be mutated once runs have started.
type Engine[S any] struct {
	reducer     Reducer[S]
	stages      map[string]Stage[S]
	routers     map[string]Router[S]
	edges       map[string]map[string]string
	terminals   map[string]bool
	cycleOK     map[string]bool
	entry       string
	checkpoints store.Store[S]
	emitter     emit.Emitter
	metrics     *Metrics
	maxSteps    int
	validated   bool
}

// Option configures an Engine at construction time.
type Option[S any] func(*Engine[S])

// WithEmitter attaches an observability emitter. Engine-level events use the
// thread id as the run id.
func WithEmitter[S any](em emit.Emitter) Option[S] {
	return func(e *Engine[S]) { e.emitter = em }
}

// WithMetrics attaches a Prometheus metrics collector.
func WithMetrics[S any](m *Metrics) Option[S] {
	return func(e *Engine[S]) { e.metrics = m }
}

// WithCheckpoints attaches a checkpoint store. State is persisted after every
// merged hop for runs started with a non-empty thread id.
func WithCheckpoints[S any](s store.Store[S]) Option[S] {
	return func(e *Engine[S]) { e.checkpoints = s }
}

// WithMaxSteps overrides the runtime step ceiling.
func WithMaxSteps[S any](n int) Option[S] {
	return func(e *Engine[S]) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// New creates an empty engine with the given reducer. Stages, routers and
// edges are added with the Add* methods; call Validate (or the first Run,
// which validates lazily) before execution.
func New[S any](reducer Reducer[S], opts ...Option[S]) *Engine[S] {
	e := &Engine[S]{
		reducer:   reducer,
		stages:    make(map[string]Stage[S]),
		routers:   make(map[string]Router[S]),
		edges:     make(map[string]map[string]string),
		terminals: make(map[string]bool),
		cycleOK:   make(map[string]bool),
		maxSteps:  DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddStage registers a named stage.
func (e *Engine[S]) AddStage(name string, stage Stage[S]) *Engine[S] {
	e.stages[name] = stage
	e.validated = false
	return e
}

// AddRouter registers the router that selects a stage's outgoing edge label.
func (e *Engine[S]) AddRouter(name string, router Router[S]) *Engine[S] {
	e.routers[name] = router
	e.validated = false
	return e
}

// AddEdge registers a labeled edge from one stage to another.
func (e *Engine[S]) AddEdge(from, label, to string) *Engine[S] {
	if e.edges[from] == nil {
		e.edges[from] = make(map[string]string)
	}
	e.edges[from][label] = to
	e.validated = false
	return e
}

// SetEntry designates the entry stage.
func (e *Engine[S]) SetEntry(name string) *Engine[S] {
	e.entry = name
	e.validated = false
	return e
}

// AddTerminal marks stages as terminal. Terminal stages execute like any
// other stage but end the run after their delta is merged.
func (e *Engine[S]) AddTerminal(names ...string) *Engine[S] {
	for _, n := range names {
		e.terminals[n] = true
	}
	e.validated = false
	return e
}

// AllowCycle declares stages that may participate in a bounded cycle, such as
// a retry loop whose exit is guaranteed by a router condition. Validate
// rejects any cycle through a stage not declared here.
func (e *Engine[S]) AllowCycle(names ...string) *Engine[S] {
	for _, n := range names {
		e.cycleOK[n] = true
	}
	e.validated = false
	return e
}

// Validate checks the graph shape before execution:
//
//   - the entry stage is set and registered
//   - every edge endpoint is a registered stage
//   - every reachable non-terminal stage has a router and at least one edge
//   - terminal stages have no router and no outgoing edges
//   - every reachable stage can reach a terminal
//   - every stage on a cycle was declared with AllowCycle
//
// Returns an *EngineError with code INVALID_GRAPH describing the first
// violation found.
func (e *Engine[S]) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return &EngineError{Message: fmt.Sprintf(format, args...), Code: "INVALID_GRAPH"}
	}

	if e.entry == "" {
		return fail("no entry stage set")
	}
	if _, ok := e.stages[e.entry]; !ok {
		return fail("entry stage %q is not registered", e.entry)
	}
	for from, out := range e.edges {
		if _, ok := e.stages[from]; !ok {
			return fail("edge source %q is not a registered stage", from)
		}
		for label, to := range out {
			if _, ok := e.stages[to]; !ok {
				return fail("edge %s --%s--> %s targets an unregistered stage", from, label, to)
			}
		}
	}

	reachable := e.reachableFrom(e.entry)
	for name := range reachable {
		if e.terminals[name] {
			if len(e.edges[name]) > 0 {
				return fail("terminal stage %q has outgoing edges", name)
			}
			if _, ok := e.routers[name]; ok {
				return fail("terminal stage %q has a router", name)
			}
			continue
		}
		if _, ok := e.routers[name]; !ok {
			return fail("stage %q has no router", name)
		}
		if len(e.edges[name]) == 0 {
			return fail("stage %q has no outgoing edges", name)
		}
	}

	for name := range reachable {
		if !e.reachesTerminal(name) {
			return fail("stage %q cannot reach a terminal stage", name)
		}
	}

	for name := range reachable {
		if e.onCycle(name) && !e.cycleOK[name] {
			return fail("stage %q is on an undeclared cycle; declare it with AllowCycle", name)
		}
	}

	e.validated = true
	return nil
}

// reachableFrom returns the set of stages reachable from start, inclusive.
func (e *Engine[S]) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, to := range e.edges[cur] {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	return seen
}

// reachesTerminal reports whether any terminal stage is reachable from name.
func (e *Engine[S]) reachesTerminal(name string) bool {
	for stage := range e.reachableFrom(name) {
		if e.terminals[stage] {
			return true
		}
	}
	return false
}

// onCycle reports whether name can reach itself through at least one edge.
func (e *Engine[S]) onCycle(name string) bool {
	for _, to := range e.edges[name] {
		if to == name || e.reachableFrom(to)[name] {
			return true
		}
	}
	return false
}

// StepEvent is one hop of a streamed run. Terminal is true on the final
// event; Err is set instead of State when the run failed.
type StepEvent[S any] struct {
	Stage    string
	Step     int
	State    S
	Terminal bool
	Err      error
}

// Run executes the graph from the entry stage until a terminal stage or an
// error. When threadID is non-empty and a checkpoint store is configured, the
// merged state is persisted after every hop.
//
// On error, the last merged state is returned alongside the error so callers
// can surface partial progress.
func (e *Engine[S]) Run(ctx context.Context, threadID string, initial S) (S, error) {
	if err := e.ensureValid(); err != nil {
		return initial, err
	}
	return e.runFrom(ctx, threadID, e.entry, initial, 0, nil)
}

// RunStream executes the graph like Run, emitting a StepEvent after every
// merged hop. The channel is closed when the run ends; a failed run's last
// event carries the error.
func (e *Engine[S]) RunStream(ctx context.Context, threadID string, initial S) <-chan StepEvent[S] {
	events := make(chan StepEvent[S], 1)
	go func() {
		defer close(events)
		if err := e.ensureValid(); err != nil {
			events <- StepEvent[S]{Err: err, Terminal: true}
			return
		}
		if _, err := e.runFrom(ctx, threadID, e.entry, initial, 0, events); err != nil {
			events <- StepEvent[S]{Err: err, Terminal: true}
		}
	}()
	return events
}

// Resume reloads the latest checkpoint for a thread and continues routing
// from the recorded stage. Returns the checkpointed state unchanged when the
// recorded stage is terminal.
func (e *Engine[S]) Resume(ctx context.Context, threadID string) (S, error) {
	var zero S
	if err := e.ensureValid(); err != nil {
		return zero, err
	}
	if e.checkpoints == nil {
		return zero, &EngineError{Message: "no checkpoint store configured", Code: "CHECKPOINT"}
	}
	snap, err := e.checkpoints.Load(ctx, threadID)
	if err != nil {
		return zero, &EngineError{Message: fmt.Sprintf("load checkpoint for thread %s", threadID), Code: "CHECKPOINT", Err: err}
	}
	state := snap.State
	if e.terminals[snap.Stage] {
		return state, nil
	}
	next, err := e.route(snap.Stage, state)
	if err != nil {
		return state, err
	}
	return e.runFrom(ctx, threadID, next, state, snap.Step, nil)
}

func (e *Engine[S]) ensureValid() error {
	if e.validated {
		return nil
	}
	return e.Validate()
}

// runFrom is the shared run loop behind Run, RunStream and Resume.
func (e *Engine[S]) runFrom(ctx context.Context, threadID, stage string, state S, startStep int, events chan<- StepEvent[S]) (S, error) {
	if e.metrics != nil {
		e.metrics.RunStarted()
	}
	final, err := e.loop(ctx, threadID, stage, state, startStep, events)
	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		e.metrics.RunFinished(status)
	}
	return final, err
}

func (e *Engine[S]) loop(ctx context.Context, threadID, stage string, state S, startStep int, events chan<- StepEvent[S]) (S, error) {
	step := startStep
	for {
		step++
		if step > e.maxSteps {
			return state, &EngineError{
				Message: fmt.Sprintf("run exceeded %d steps at stage %s", e.maxSteps, stage),
				Code:    "MAX_STEPS",
				Err:     ErrMaxStepsExceeded,
			}
		}
		// Cancellation is honored between hops; an in-flight stage finishes.
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		default:
		}

		start := time.Now()
		delta, err := e.stages[stage](ctx, state)
		if err != nil {
			if e.metrics != nil {
				e.metrics.ObserveStage(stage, time.Since(start), "error")
			}
			return state, &EngineError{
				Message: fmt.Sprintf("stage %s failed", stage),
				Code:    "STAGE_ERROR",
				Err:     err,
			}
		}
		state = e.reducer(state, delta)
		if e.metrics != nil {
			e.metrics.ObserveStage(stage, time.Since(start), "success")
		}

		e.checkpoint(ctx, threadID, stage, step, state)
		e.emit(emit.Event{
			RunID: threadID,
			Step:  step,
			Stage: stage,
			Msg:   "stage_merged",
			Meta:  map[string]interface{}{"duration_ms": time.Since(start).Milliseconds()},
		})

		terminal := e.terminals[stage]
		if events != nil {
			events <- StepEvent[S]{Stage: stage, Step: step, State: state, Terminal: terminal}
		}
		if terminal {
			return state, nil
		}

		next, err := e.route(stage, state)
		if err != nil {
			return state, err
		}
		stage = next
	}
}

// checkpoint persists the merged state for the hop. A failing store degrades
// the run to unpersisted instead of aborting it.
func (e *Engine[S]) checkpoint(ctx context.Context, threadID, stage string, step int, state S) {
	if threadID == "" || e.checkpoints == nil {
		return
	}
	snap := store.Snapshot[S]{
		ThreadID:  threadID,
		Stage:     stage,
		Step:      step,
		UpdatedAt: time.Now().UTC(),
		State:     state,
	}
	if err := e.checkpoints.Save(ctx, threadID, snap); err != nil {
		e.emit(emit.Event{
			RunID: threadID,
			Step:  step,
			Stage: stage,
			Msg:   "checkpoint_failed",
			Meta:  map[string]interface{}{"error": err.Error()},
		})
		return
	}
	if e.metrics != nil {
		e.metrics.CheckpointWrite(e.checkpoints.Backend())
	}
}

func (e *Engine[S]) route(stage string, state S) (string, error) {
	label := e.routers[stage](state)
	next, ok := e.edges[stage][label]
	if !ok {
		return "", &EngineError{
			Message: fmt.Sprintf("stage %s routed to unknown label %q", stage, label),
			Code:    "NO_ROUTE",
			Err:     ErrNoRoute,
		}
	}
	return next, nil
}

func (e *Engine[S]) emit(ev emit.Event) {
	if e.emitter != nil {
		e.emitter.Emit(ev)
	}
}
