package tutor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odevai/tutorflow/retrieval"
)

func TestRouteAfterIntake(t *testing.T) {
	tests := []struct {
		name  string
		state WorkflowState
		want  string
	}{
		{"error set", WorkflowState{Error: "bozuk", QuestionText: "soru"}, labelError},
		{"empty question", WorkflowState{QuestionText: "   "}, labelError},
		{"greeting", WorkflowState{QuestionText: "merhaba", MessageType: MessageGreeting}, labelChat},
		{"small talk", WorkflowState{QuestionText: "nasılsın", MessageType: MessageChat}, labelChat},
		{"academic", WorkflowState{QuestionText: "fotosentez nedir", MessageType: MessageAcademic}, labelContinue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, routeAfterIntake(tt.state))
		})
	}
}

func TestRouteAfterRetrieval(t *testing.T) {
	route := routeAfterRetrieval(2)
	objs := []retrieval.Objective{{Code: "M.8.1"}}

	tests := []struct {
		name  string
		state WorkflowState
		want  string
	}{
		{"results, clean status", WorkflowState{MatchedObjectives: objs, Status: StatusProcessing}, labelContinue},
		{"retry marked, under ceiling", WorkflowState{Status: StatusNeedsRetry, RetryCount: 1}, labelRetry},
		{"retry marked, at ceiling", WorkflowState{Status: StatusNeedsRetry, RetryCount: 2}, labelRetry},
		{"retry marked, over ceiling", WorkflowState{Status: StatusNeedsRetry, RetryCount: 3}, labelError},
		{"weak signal kept results", WorkflowState{MatchedObjectives: objs, Status: StatusNeedsRetry, RetryCount: 1}, labelRetry},
		{"no results, counter exhausted", WorkflowState{RetryCount: 3}, labelError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, route(tt.state))
		})
	}
}

func TestRouteResultPresence(t *testing.T) {
	assert.Equal(t, labelNoResults, routeResultPresence(WorkflowState{}))
	assert.Equal(t, labelHasResults, routeResultPresence(WorkflowState{
		MatchedObjectives: []retrieval.Objective{{Code: "M.8.1"}},
	}))
	assert.Equal(t, labelHasResults, routeResultPresence(WorkflowState{
		RelatedChunks: []retrieval.Chunk{{ID: "c1"}},
	}))
}

func TestRouteImageInclusion(t *testing.T) {
	assert.Equal(t, labelTextOnly, routeImageInclusion(WorkflowState{}))
	assert.Equal(t, labelWithImages, routeImageInclusion(WorkflowState{
		RelatedImages: []retrieval.ImageRef{{ID: "i1"}},
	}))
}

func TestRouteAfterRespond(t *testing.T) {
	assert.Equal(t, labelDone, routeAfterRespond(WorkflowState{Response: "açıklama"}))
	assert.Equal(t, labelError, routeAfterRespond(WorkflowState{}))
	assert.Equal(t, labelError, routeAfterRespond(WorkflowState{Response: "x", Error: "bozuk"}))
}

func TestFinalStatus(t *testing.T) {
	objs := []retrieval.Objective{{Code: "M.8.1"}}

	assert.Equal(t, StatusFailed, finalStatus(WorkflowState{Error: "x", Response: "y"}))
	assert.Equal(t, StatusFailed, finalStatus(WorkflowState{MatchedObjectives: objs}))
	assert.Equal(t, StatusSuccess, finalStatus(WorkflowState{MatchedObjectives: objs, Response: "y"}))
	assert.Equal(t, StatusPartialSuccess, finalStatus(WorkflowState{Response: "y"}))
}
