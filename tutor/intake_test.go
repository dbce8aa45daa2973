package tutor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odevai/tutorflow/vision"
)

func TestClassifyMessage(t *testing.T) {
	tests := []struct {
		question string
		want     MessageType
	}{
		{"", MessageUnclear},
		{"   ", MessageUnclear},
		{"merhaba", MessageGreeting},
		{"Selam hocam", MessageGreeting},
		{"nasılsın?", MessageChat},
		{"çok teşekkür ederim", MessageChat},
		{"fotosentez nedir", MessageAcademic},
		{"merhaba, fotosentezin ışığa bağımlı tepkimelerini açıklar mısın", MessageAcademic},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classifyMessage(tt.question), "question %q", tt.question)
	}
}

func newIntakePipeline(t *testing.T, v vision.Model, gradeConfidenceMin float64) *Pipeline {
	t.Helper()
	p, err := New(Config{GradeConfidenceMin: gradeConfidenceMin}, Deps{
		Vision:      v,
		Retriever:   &fakeRetriever{},
		Synthesizer: &fakeSynthesizer{},
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	return p
}

func TestIntakeMergesVisionSignals(t *testing.T) {
	grade := 7
	mock := &vision.Mock{Result: vision.Result{
		Text:            "Bir cisme etki eden net kuvvet nedir?",
		Topics:          []string{"kuvvet", "net kuvvet"},
		MathExpressions: []string{"F = m * a"},
		QuestionType:    "problem",
		GradeEstimate:   &grade,
		GradeConfidence: 0.9,
	}}
	p := newIntakePipeline(t, mock, 0.5)

	delta, err := p.intake(context.Background(), WorkflowState{ImageData: []byte{0xFF, 0xD8}})
	require.NoError(t, err)

	assert.Equal(t, "Bir cisme etki eden net kuvvet nedir?", delta.QuestionText)
	assert.Equal(t, MessageAcademic, delta.MessageType)
	assert.Equal(t, []string{"kuvvet", "net kuvvet"}, delta.DetectedTopics)
	assert.Equal(t, []string{"F = m * a"}, delta.MathExpressions)
	assert.Equal(t, "problem", delta.QuestionType)
	require.NotNil(t, delta.AIEstimatedGrade)
	assert.Equal(t, 7, *delta.AIEstimatedGrade)
}

func TestIntakeDiscardsLowConfidenceGrade(t *testing.T) {
	grade := 5
	mock := &vision.Mock{Result: vision.Result{
		Text:            "soru metni",
		GradeEstimate:   &grade,
		GradeConfidence: 0.2,
	}}
	p := newIntakePipeline(t, mock, 0.5)

	delta, err := p.intake(context.Background(), WorkflowState{ImageData: []byte{1}})
	require.NoError(t, err)
	assert.Nil(t, delta.AIEstimatedGrade)
}

func TestIntakeKeepsTypedQuestionOverTranscription(t *testing.T) {
	mock := &vision.Mock{Result: vision.Result{Text: "görüntüden çıkan metin"}}
	p := newIntakePipeline(t, mock, 0.5)

	delta, err := p.intake(context.Background(), WorkflowState{
		QuestionText: "kullanıcının yazdığı soru",
		ImageData:    []byte{1},
	})
	require.NoError(t, err)
	assert.Empty(t, delta.QuestionText, "typed text wins, delta leaves it untouched")
	assert.Equal(t, MessageAcademic, delta.MessageType)
}

func TestIntakeDegradesOnVisionFailure(t *testing.T) {
	mock := &vision.Mock{Err: errors.New("vision API down")}
	p := newIntakePipeline(t, mock, 0.5)

	delta, err := p.intake(context.Background(), WorkflowState{
		QuestionText: "yazılı soru",
		ImageData:    []byte{1},
	})
	require.NoError(t, err, "vision failure must not fail the stage")
	assert.Equal(t, MessageAcademic, delta.MessageType)

	// Image-only request with broken vision cannot continue.
	delta, err = p.intake(context.Background(), WorkflowState{ImageData: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, MessageUnclear, delta.MessageType)
	assert.NotEmpty(t, delta.Error)
}
