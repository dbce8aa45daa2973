package progress

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store for tests and development.
type MemStore struct {
	mu   sync.RWMutex
	recs map[string]map[string]Record // userID -> objectiveCode -> record
}

// NewMemStore creates an empty in-memory progress store.
func NewMemStore() *MemStore {
	return &MemStore{recs: make(map[string]map[string]Record)}
}

// Upsert inserts or replaces the record for (UserID, ObjectiveCode).
func (m *MemStore) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCode, ok := m.recs[rec.UserID]
	if !ok {
		byCode = make(map[string]Record)
		m.recs[rec.UserID] = byCode
	}
	byCode[rec.ObjectiveCode] = rec
	return nil
}

// List returns a user's tracked objectives ordered by code.
func (m *MemStore) List(_ context.Context, userID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byCode := m.recs[userID]
	out := make([]Record, 0, len(byCode))
	for _, rec := range byCode {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectiveCode < out[j].ObjectiveCode })
	return out, nil
}
