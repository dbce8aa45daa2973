package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/odevai/tutorflow/graph/emit"
)

// FailureMapper converts a stage failure into a state delta. It is used by
// WithRecovery to keep collaborator faults inside the state model instead of
// aborting the run.
type FailureMapper[S any] func(stage string, err error) S

// RetryMapper converts a stage failure into a retry-marking delta. Unlike
// FailureMapper it also sees the input state, so it can derive the next retry
// counter value from the current one.
type RetryMapper[S any] func(state S, stage string, err error) S

// stageResult carries a stage's output across the timeout goroutine boundary.
type stageResult[S any] struct {
	delta S
	err   error
}

// WithStageTimeout bounds a stage's execution time.
//
// The stage runs in its own goroutine with a deadline context. If the
// deadline passes before the stage returns, the wrapper returns a
// STAGE_TIMEOUT error immediately; the engine is never blocked on a stage
// that ignores its context. The abandoned goroutine finishes in the
// background and its result is discarded (the result channel is buffered).
//
// A timeout of zero or less disables the wrapper.
func WithStageTimeout[S any](name string, timeout time.Duration, stage Stage[S]) Stage[S] {
	if timeout <= 0 {
		return stage
	}
	return func(ctx context.Context, state S) (S, error) {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		done := make(chan stageResult[S], 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					var zero S
					done <- stageResult[S]{zero, &EngineError{
						Message: fmt.Sprintf("stage %s panicked: %v", name, r),
						Code:    "STAGE_PANIC",
					}}
				}
			}()
			delta, err := stage(tctx, state)
			done <- stageResult[S]{delta, err}
		}()

		select {
		case res := <-done:
			return res.delta, res.err
		case <-tctx.Done():
			var zero S
			if err := ctx.Err(); err != nil {
				// Parent cancellation, not a stage timeout.
				return zero, err
			}
			return zero, &EngineError{
				Message: fmt.Sprintf("stage %s exceeded timeout of %v", name, timeout),
				Code:    "STAGE_TIMEOUT",
				Err:     context.DeadlineExceeded,
			}
		}
	}
}

// WithRecovery converts stage errors and panics into a state delta produced
// by onError. The wrapped stage never returns an error, so a collaborator
// fault becomes a routing decision instead of a run abort.
func WithRecovery[S any](name string, stage Stage[S], onError FailureMapper[S]) Stage[S] {
	return func(ctx context.Context, state S) (S, error) {
		delta, err := runGuarded(ctx, name, stage, state)
		if err != nil {
			return onError(name, err), nil
		}
		return delta, nil
	}
}

// WithRetryMark is the retry-aware variant of WithRecovery: failures become a
// needs-retry delta derived from the current state via onError.
func WithRetryMark[S any](name string, stage Stage[S], onError RetryMapper[S]) Stage[S] {
	return func(ctx context.Context, state S) (S, error) {
		delta, err := runGuarded(ctx, name, stage, state)
		if err != nil {
			return onError(state, name, err), nil
		}
		return delta, nil
	}
}

// WithObserve emits a stage_completed event around a stage execution. The
// describe callback extracts event metadata from the input state and the
// produced delta; the wrapper itself never alters control flow.
func WithObserve[S any](name string, stage Stage[S], emitter emit.Emitter, describe func(state, delta S) map[string]interface{}) Stage[S] {
	if emitter == nil {
		return stage
	}
	return func(ctx context.Context, state S) (S, error) {
		start := time.Now()
		delta, err := stage(ctx, state)

		meta := map[string]interface{}{}
		if describe != nil {
			if m := describe(state, delta); m != nil {
				meta = m
			}
		}
		meta["duration_ms"] = time.Since(start).Milliseconds()
		if err != nil {
			meta["error"] = err.Error()
		}
		runID, _ := meta["analysis_id"].(string)
		emitter.Emit(emit.Event{
			RunID: runID,
			Stage: name,
			Msg:   "stage_completed",
			Meta:  meta,
		})
		return delta, err
	}
}

// runGuarded executes a stage with panic recovery.
func runGuarded[S any](ctx context.Context, name string, stage Stage[S], state S) (delta S, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero S
			delta = zero
			err = &EngineError{
				Message: fmt.Sprintf("stage %s panicked: %v", name, r),
				Code:    "STAGE_PANIC",
			}
		}
	}()
	return stage(ctx, state)
}
