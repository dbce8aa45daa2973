package tutor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odevai/tutorflow/retrieval"
)

func intPtr(v int) *int { return &v }

func TestReduceOverwritesOnlyNonEmpty(t *testing.T) {
	prev := WorkflowState{
		AnalysisID:   "a1",
		QuestionText: "fotosentez nedir",
		Status:       StatusProcessing,
	}
	merged := Reduce(prev, WorkflowState{Response: "açıklama"})

	assert.Equal(t, "a1", merged.AnalysisID)
	assert.Equal(t, "fotosentez nedir", merged.QuestionText)
	assert.Equal(t, "açıklama", merged.Response)
}

func TestReduceIsIdempotent(t *testing.T) {
	prev := WorkflowState{QuestionText: "soru", RetryCount: 1}
	delta := WorkflowState{Status: StatusNeedsRetry, RetryCount: 2}

	once := Reduce(prev, delta)
	twice := Reduce(once, delta)
	assert.Equal(t, once, twice)
}

func TestReduceDisjointDeltasCommute(t *testing.T) {
	base := WorkflowState{AnalysisID: "a1", QuestionText: "soru", Status: StatusProcessing}
	d1 := WorkflowState{MatchedObjectives: []retrieval.Objective{{Code: "M.8.1"}}}
	d2 := WorkflowState{GapSummary: "özet", TrackedCodes: []string{"M.8.1"}}

	assert.Equal(t, Reduce(Reduce(base, d1), d2), Reduce(Reduce(base, d2), d1),
		"deltas touching disjoint fields merge in either order")
}

func TestReduceEmptyDeltaIsIdentity(t *testing.T) {
	state := WorkflowState{
		AnalysisID:        "a1",
		QuestionText:      "soru",
		UserGrade:         intPtr(8),
		IsExamMode:        true,
		MatchedObjectives: []retrieval.Objective{{Code: "M.8.1"}},
		RetryCount:        2,
		Status:            StatusProcessing,
		Error:             "önceki hata",
		Response:          "yanıt",
	}
	assert.Equal(t, state, Reduce(state, WorkflowState{}))
}

func TestReduceRetryCountIsMonotonic(t *testing.T) {
	merged := Reduce(WorkflowState{RetryCount: 2}, WorkflowState{RetryCount: 1})
	assert.Equal(t, 2, merged.RetryCount, "a stale delta must not rewind the counter")

	merged = Reduce(merged, WorkflowState{RetryCount: 3})
	assert.Equal(t, 3, merged.RetryCount)
}

func TestReduceEmptyNonNilSliceOverwrites(t *testing.T) {
	prev := WorkflowState{MatchedObjectives: []retrieval.Objective{{Code: "M.8.1"}}}

	// nil delta slice: nothing was searched, keep the previous value.
	merged := Reduce(prev, WorkflowState{})
	assert.Len(t, merged.MatchedObjectives, 1)

	// empty non-nil slice: searched and found nothing.
	merged = Reduce(prev, WorkflowState{MatchedObjectives: []retrieval.Objective{}})
	assert.Empty(t, merged.MatchedObjectives)
	assert.NotNil(t, merged.MatchedObjectives)
}

func TestReduceForwardStatusClearsError(t *testing.T) {
	prev := WorkflowState{Status: StatusNeedsRetry, Error: "geçici hata"}
	merged := Reduce(prev, WorkflowState{Status: StatusProcessing})
	assert.Empty(t, merged.Error)

	// A failed status never clears the error.
	prev = WorkflowState{Error: "kalıcı hata"}
	merged = Reduce(prev, WorkflowState{Status: StatusFailed})
	assert.Equal(t, "kalıcı hata", merged.Error)
}

func TestReduceClearResults(t *testing.T) {
	prev := WorkflowState{
		MatchedObjectives: []retrieval.Objective{{Code: "M.8.1"}},
		RelatedChunks:     []retrieval.Chunk{{ID: "c1"}},
		RelatedImages:     []retrieval.ImageRef{{ID: "i1"}},
	}
	merged := Reduce(prev, WorkflowState{Status: StatusFailed, Error: "x", ClearResults: true})

	assert.Empty(t, merged.MatchedObjectives)
	assert.Empty(t, merged.RelatedChunks)
	assert.Empty(t, merged.RelatedImages)
	assert.Equal(t, StatusFailed, merged.Status)
}

func TestReduceExamModeLatches(t *testing.T) {
	merged := Reduce(WorkflowState{IsExamMode: true}, WorkflowState{})
	assert.True(t, merged.IsExamMode)
}

func TestEffectiveGradePrefersUser(t *testing.T) {
	s := WorkflowState{UserGrade: intPtr(8), AIEstimatedGrade: intPtr(6)}
	assert.Equal(t, 8, *s.EffectiveGrade())

	s = WorkflowState{AIEstimatedGrade: intPtr(6)}
	assert.Equal(t, 6, *s.EffectiveGrade())

	s = WorkflowState{}
	assert.Nil(t, s.EffectiveGrade())
}

func TestEffectiveSubjectInference(t *testing.T) {
	s := WorkflowState{UserSubject: "fizik", DetectedTopics: []string{"denklem"}}
	assert.Equal(t, "fizik", s.EffectiveSubject(), "user subject outranks inference")

	s = WorkflowState{DetectedTopics: []string{"İkinci dereceden Denklem çözümü"}}
	assert.Equal(t, "matematik", s.EffectiveSubject())

	s = WorkflowState{DetectedTopics: []string{"fotosentez", "hücre"}}
	assert.Equal(t, "biyoloji", s.EffectiveSubject())

	s = WorkflowState{DetectedTopics: []string{"bilinmeyen konu"}}
	assert.Empty(t, s.EffectiveSubject())
}
