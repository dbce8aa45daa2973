package tutor

import (
	"strings"

	"github.com/odevai/tutorflow/graph"
)

// Edge labels used by the pipeline's routers.
const (
	labelError      = "error"
	labelChat       = "chat"
	labelContinue   = "continue"
	labelRetry      = "retry"
	labelHasResults = "has_results"
	labelNoResults  = "no_results"
	labelWithImages = "with_images"
	labelTextOnly   = "text_only"
	labelDone       = "done"
)

// routeAfterIntake decides what happens after classification: hard failures
// and empty questions go to the error terminal, greetings and small talk go
// to the chat terminal, academic questions continue into retrieval.
func routeAfterIntake(state WorkflowState) string {
	switch {
	case state.Error != "":
		return labelError
	case strings.TrimSpace(state.QuestionText) == "":
		return labelError
	case state.MessageType == MessageGreeting || state.MessageType == MessageChat:
		return labelChat
	default:
		return labelContinue
	}
}

// routeAfterRetrieval owns the retry ceiling. The retrieval stage only marks
// needs_retry and increments the counter; the decision to stop retrying lives
// here so it cannot be duplicated per stage.
//
// The counter is incremented before this router sees it, so an attempt with
// post-increment count N was attempt N-1; retries are allowed while the
// count stays at or below maxRetries, giving exactly maxRetries+1 retrieval
// invocations before the error terminal.
func routeAfterRetrieval(maxRetries int) graph.Router[WorkflowState] {
	return func(state WorkflowState) string {
		switch {
		case len(state.MatchedObjectives) > 0 && state.Status != StatusNeedsRetry:
			return labelContinue
		case state.Status == StatusNeedsRetry && state.RetryCount <= maxRetries:
			return labelRetry
		case state.RetryCount > maxRetries:
			return labelError
		case len(state.MatchedObjectives) > 0:
			// Defensive: stale needs_retry with usable results.
			return labelContinue
		case state.RetryCount <= maxRetries:
			return labelRetry
		default:
			return labelError
		}
	}
}

// routeResultPresence reports whether any retrieval results exist at all.
func routeResultPresence(state WorkflowState) string {
	if len(state.MatchedObjectives) > 0 || len(state.RelatedChunks) > 0 {
		return labelHasResults
	}
	return labelNoResults
}

// routeImageInclusion picks the visual response path when related figures
// were found.
func routeImageInclusion(state WorkflowState) string {
	if len(state.RelatedImages) > 0 {
		return labelWithImages
	}
	return labelTextOnly
}

// routeAfterRespond sends runs without a generated response to the error
// terminal instead of finalizing an empty answer.
func routeAfterRespond(state WorkflowState) string {
	if state.Error != "" || state.Response == "" {
		return labelError
	}
	return labelDone
}

// finalStatus derives the reported outcome. Used by the finalize terminal
// for reporting, never for branching.
func finalStatus(state WorkflowState) Status {
	switch {
	case state.Error != "":
		return StatusFailed
	case state.Response == "":
		return StatusFailed
	case len(state.MatchedObjectives) > 0:
		return StatusSuccess
	default:
		return StatusPartialSuccess
	}
}
