// Package store provides checkpoint persistence for workflow threads.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no snapshot exists for a thread id.
var ErrNotFound = errors.New("not found")

// Snapshot is the latest persisted state of a workflow thread.
//
// Stores keep exactly one snapshot per thread id, overwritten after every
// merged hop. Version is a monotonic counter incremented on each overwrite;
// it exists for debugging and optimistic-concurrency checks, not ordering
// across threads.
type Snapshot[S any] struct {
	ThreadID  string    `json:"thread_id"`
	Stage     string    `json:"stage"`
	Step      int       `json:"step"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	State     S         `json:"state"`
}

// Store persists workflow snapshots keyed by thread id.
//
// Implementations must be safe for concurrent use. State values must be
// JSON-serializable for the SQL-backed stores.
type Store[S any] interface {
	// Save upserts the snapshot for a thread, incrementing its version.
	Save(ctx context.Context, threadID string, snap Snapshot[S]) error

	// Load returns the latest snapshot for a thread, or ErrNotFound.
	Load(ctx context.Context, threadID string) (Snapshot[S], error)

	// Delete removes a thread's snapshot. Deleting a missing thread is not
	// an error.
	Delete(ctx context.Context, threadID string) error

	// Backend names the storage backend for metrics labels ("memory",
	// "sqlite", "mysql").
	Backend() string
}
