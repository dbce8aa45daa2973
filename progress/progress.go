// Package progress tracks which learning objectives a student has worked on.
package progress

import (
	"context"
	"time"
)

// Record is one tracked (student, objective) pair. Re-tracking the same pair
// updates the record in place; the pair is the identity.
type Record struct {
	UserID        string    `json:"user_id"`
	ObjectiveCode string    `json:"objective_code"`
	Confidence    float64   `json:"confidence"`
	SourceSession string    `json:"source_session"`
	TrackedAt     time.Time `json:"tracked_at"`
}

// Store persists tracked objectives.
//
// Upsert must be idempotent on (UserID, ObjectiveCode): tracking the same
// objective twice for a student updates confidence and timestamp instead of
// creating a duplicate.
type Store interface {
	Upsert(ctx context.Context, rec Record) error
	List(ctx context.Context, userID string) ([]Record, error)
}
