// Package tutor implements the education Q&A workflow: a student's question
// is classified, matching curriculum learning objectives (kazanım) and
// textbook passages are retrieved, and a pedagogical explanation is
// synthesized.
package tutor

import (
	"strings"

	"github.com/odevai/tutorflow/retrieval"
)

// MessageType classifies the incoming message.
type MessageType string

const (
	MessageAcademic MessageType = "academic"
	MessageGreeting MessageType = "greeting"
	MessageChat     MessageType = "chat"
	MessageUnclear  MessageType = "unclear"
)

// Status drives routing and final reporting.
type Status string

const (
	StatusProcessing     Status = "processing"
	StatusNeedsRetry     Status = "needs_retry"
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailed         Status = "failed"
	StatusChatMode       Status = "chat_mode"
)

// WorkflowState is the accumulated state of one Q&A run.
//
// Stages return partial WorkflowState values (deltas); Reduce merges them.
// Optional scalars are pointers so "absent" is distinguishable from zero.
type WorkflowState struct {
	AnalysisID   string      `json:"analysis_id"`
	QuestionText string      `json:"question_text"`
	MessageType  MessageType `json:"message_type"`

	UserGrade        *int   `json:"user_grade,omitempty"`
	AIEstimatedGrade *int   `json:"ai_estimated_grade,omitempty"`
	UserSubject      string `json:"user_subject,omitempty"`
	IsExamMode       bool   `json:"is_exam_mode"`

	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	ImageData []byte `json:"image_data,omitempty"`

	DetectedTopics  []string `json:"detected_topics,omitempty"`
	MathExpressions []string `json:"math_expressions,omitempty"`
	QuestionType    string   `json:"question_type,omitempty"`

	MatchedObjectives []retrieval.Objective `json:"matched_objectives,omitempty"`
	RelatedChunks     []retrieval.Chunk     `json:"related_chunks,omitempty"`
	RelatedImages     []retrieval.ImageRef  `json:"related_images,omitempty"`
	TrackedCodes      []string              `json:"tracked_codes,omitempty"`

	RetryCount int    `json:"retry_count"`
	Status     Status `json:"status"`
	Error      string `json:"error,omitempty"`

	Response           string `json:"response,omitempty"`
	GapSummary         string `json:"gap_summary,omitempty"`
	CrossObjectiveNote string `json:"cross_objective_note,omitempty"`

	// ClearResults marks a delta that empties the result lists; set by the
	// error terminal so a failed run never reports stale results.
	ClearResults bool `json:"-"`
}

// Reduce merges a stage's delta into the accumulated state.
//
// Merge rules:
//   - Strings and enums overwrite only when non-empty in the delta.
//   - Pointers overwrite only when non-nil.
//   - Slices overwrite only when non-nil; an empty non-nil slice records
//     "searched, found nothing".
//   - RetryCount is monotonic: the merged value is the max of both sides.
//   - A delta that moves status forward (processing, success, partial,
//     chat_mode) without carrying an error clears any earlier error.
//   - ClearResults empties the result lists after all other merging.
func Reduce(prev, delta WorkflowState) WorkflowState {
	next := prev

	if delta.AnalysisID != "" {
		next.AnalysisID = delta.AnalysisID
	}
	if delta.QuestionText != "" {
		next.QuestionText = delta.QuestionText
	}
	if delta.MessageType != "" {
		next.MessageType = delta.MessageType
	}
	if delta.UserGrade != nil {
		next.UserGrade = delta.UserGrade
	}
	if delta.AIEstimatedGrade != nil {
		next.AIEstimatedGrade = delta.AIEstimatedGrade
	}
	if delta.UserSubject != "" {
		next.UserSubject = delta.UserSubject
	}
	if delta.IsExamMode {
		next.IsExamMode = true
	}
	if delta.UserID != "" {
		next.UserID = delta.UserID
	}
	if delta.SessionID != "" {
		next.SessionID = delta.SessionID
	}
	if delta.ImageData != nil {
		next.ImageData = delta.ImageData
	}
	if delta.DetectedTopics != nil {
		next.DetectedTopics = delta.DetectedTopics
	}
	if delta.MathExpressions != nil {
		next.MathExpressions = delta.MathExpressions
	}
	if delta.QuestionType != "" {
		next.QuestionType = delta.QuestionType
	}
	if delta.MatchedObjectives != nil {
		next.MatchedObjectives = delta.MatchedObjectives
	}
	if delta.RelatedChunks != nil {
		next.RelatedChunks = delta.RelatedChunks
	}
	if delta.RelatedImages != nil {
		next.RelatedImages = delta.RelatedImages
	}
	if delta.TrackedCodes != nil {
		next.TrackedCodes = delta.TrackedCodes
	}
	if delta.RetryCount > next.RetryCount {
		next.RetryCount = delta.RetryCount
	}
	if delta.Status != "" {
		next.Status = delta.Status
		if delta.Error == "" && statusClearsError(delta.Status) {
			next.Error = ""
		}
	}
	if delta.Error != "" {
		next.Error = delta.Error
	}
	if delta.Response != "" {
		next.Response = delta.Response
	}
	if delta.GapSummary != "" {
		next.GapSummary = delta.GapSummary
	}
	if delta.CrossObjectiveNote != "" {
		next.CrossObjectiveNote = delta.CrossObjectiveNote
	}
	if delta.ClearResults {
		next.MatchedObjectives = nil
		next.RelatedChunks = nil
		next.RelatedImages = nil
	}
	return next
}

func statusClearsError(s Status) bool {
	switch s {
	case StatusProcessing, StatusSuccess, StatusPartialSuccess, StatusChatMode:
		return true
	}
	return false
}

// EffectiveGrade returns the grade filter to use: the user-supplied grade
// always outranks the AI estimate; nil when neither is present. Pure
// derivation, never stored back into state.
func (s WorkflowState) EffectiveGrade() *int {
	if s.UserGrade != nil {
		return s.UserGrade
	}
	return s.AIEstimatedGrade
}

// EffectiveSubject returns the subject filter to use: the user-supplied
// subject when present, otherwise a subject inferred from detected topics by
// keyword match, otherwise empty.
func (s WorkflowState) EffectiveSubject() string {
	if s.UserSubject != "" {
		return s.UserSubject
	}
	return inferSubject(s.DetectedTopics)
}

// subjectOrder fixes iteration order so inference is deterministic.
var subjectOrder = []string{
	"matematik", "fizik", "kimya", "biyoloji",
	"tarih", "coğrafya", "türkçe", "ingilizce",
}

var subjectKeywords = map[string][]string{
	"matematik": {"matematik", "denklem", "integral", "türev", "geometri", "üçgen", "fonksiyon", "olasılık", "kesir", "çarpan"},
	"fizik":     {"fizik", "kuvvet", "hız", "ivme", "enerji", "elektrik", "optik", "basınç", "sürtünme"},
	"kimya":     {"kimya", "atom", "molekül", "asit", "baz", "periyodik", "tepkime", "mol"},
	"biyoloji":  {"biyoloji", "hücre", "fotosentez", "dna", "mitoz", "mayoz", "enzim", "ekosistem"},
	"tarih":     {"tarih", "osmanlı", "savaş", "devrim", "antlaşma", "cumhuriyet", "fetih"},
	"coğrafya":  {"coğrafya", "iklim", "harita", "nüfus", "deprem", "akarsu", "kıta"},
	"türkçe":    {"türkçe", "dilbilgisi", "cümle", "fiil", "paragraf", "şiir", "anlatım"},
	"ingilizce": {"ingilizce", "grammar", "tense", "vocabulary", "present", "past"},
}

func inferSubject(topics []string) string {
	if len(topics) == 0 {
		return ""
	}
	for _, subject := range subjectOrder {
		for _, keyword := range subjectKeywords[subject] {
			for _, topic := range topics {
				if strings.Contains(strings.ToLower(topic), keyword) {
					return subject
				}
			}
		}
	}
	return ""
}
