package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store implementation.
//
// Designed for tests, development, and as the graceful fallback when a
// durable backend is unreachable at startup. Snapshots are lost when the
// process exits.
type MemStore[S any] struct {
	mu    sync.RWMutex
	snaps map[string]Snapshot[S]
}

// NewMemStore creates an empty in-memory store.
func NewMemStore[S any]() *MemStore[S] {
	return &MemStore[S]{snaps: make(map[string]Snapshot[S])}
}

// Save upserts the snapshot, carrying the version counter forward.
func (m *MemStore[S]) Save(_ context.Context, threadID string, snap Snapshot[S]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap.ThreadID = threadID
	snap.Version = m.snaps[threadID].Version + 1
	m.snaps[threadID] = snap
	return nil
}

// Load returns the latest snapshot for a thread, or ErrNotFound.
func (m *MemStore[S]) Load(_ context.Context, threadID string) (Snapshot[S], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snaps[threadID]
	if !ok {
		var zero Snapshot[S]
		return zero, ErrNotFound
	}
	return snap, nil
}

// Delete removes a thread's snapshot.
func (m *MemStore[S]) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.snaps, threadID)
	return nil
}

// Backend returns "memory".
func (m *MemStore[S]) Backend() string { return "memory" }
