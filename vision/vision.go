// Package vision extracts question content from student-submitted images.
package vision

import "context"

// Result is the structured content a vision model extracts from an image of
// a question: transcribed text, detected topic keywords, math expressions,
// question kind, and an optional grade-level estimate with its confidence.
type Result struct {
	Text            string   `json:"text"`
	Topics          []string `json:"topics"`
	MathExpressions []string `json:"math_expressions"`
	QuestionType    string   `json:"question_type"`
	GradeEstimate   *int     `json:"grade_estimate"`
	GradeConfidence float64  `json:"grade_confidence"`
}

// Model extracts question content from raw image bytes.
//
// An error means the image could not be analyzed; the intake stage degrades
// to text-only processing in that case rather than failing the run.
type Model interface {
	Extract(ctx context.Context, image []byte) (Result, error)
}
