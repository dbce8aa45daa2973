// Package retrieval provides semantic search over curriculum content:
// learning objectives (kazanım), textbook passages, and related figures.
package retrieval

import "context"

// Objective is a curriculum learning objective returned by semantic search.
type Objective struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Grade       int     `json:"grade"`
	Subject     string  `json:"subject"`
	Score       float64 `json:"score"`
}

// Chunk is a textbook passage returned by semantic search.
type Chunk struct {
	ID     string  `json:"id"`
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float64 `json:"score"`
}

// ImageRef points at a figure or diagram related to the retrieved content.
type ImageRef struct {
	ID      string  `json:"id"`
	URL     string  `json:"url"`
	Caption string  `json:"caption"`
	Score   float64 `json:"score"`
}

// ObjectiveQuery filters an objective search.
//
// A nil Grade or empty Subject disables that filter; the retrieval stage
// relaxes filters progressively across retry attempts by clearing them. With
// ExamMode set, grade matching is cumulative (objective grade <= target)
// instead of exact, since exams cover all prior material.
type ObjectiveQuery struct {
	Text     string
	Grade    *int
	Subject  string
	ExamMode bool
	Limit    int
}

// PassageQuery filters a passage or image search. Codes narrows results to
// content linked to the given objective codes when the backend supports it.
type PassageQuery struct {
	Text  string
	Codes []string
	Limit int
}

// Retriever is the semantic search contract the workflow depends on.
type Retriever interface {
	SearchObjectives(ctx context.Context, q ObjectiveQuery) ([]Objective, error)
	SearchPassages(ctx context.Context, q PassageQuery) ([]Chunk, error)
	SearchImages(ctx context.Context, q PassageQuery) ([]ImageRef, error)
}

// Embedder turns text into a dense vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
