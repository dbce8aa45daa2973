package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is an in-process cosine-similarity Retriever for development
// and tests. Documents are embedded at insert time with the configured
// Embedder; queries are embedded per search.
type MemoryIndex struct {
	embedder Embedder

	mu         sync.RWMutex
	objectives []indexedObjective
	chunks     []indexedChunk
	images     []indexedImage
}

type indexedObjective struct {
	obj Objective
	vec []float32
}

type indexedChunk struct {
	chunk Chunk
	codes map[string]bool
	vec   []float32
}

type indexedImage struct {
	img   ImageRef
	codes map[string]bool
	vec   []float32
}

// NewMemoryIndex creates an empty index over the given embedder.
func NewMemoryIndex(embedder Embedder) *MemoryIndex {
	return &MemoryIndex{embedder: embedder}
}

// AddObjective embeds and indexes a learning objective.
func (m *MemoryIndex) AddObjective(ctx context.Context, obj Objective) error {
	vec, err := m.embedder.Embed(ctx, obj.Description)
	if err != nil {
		return fmt.Errorf("embed objective %s: %w", obj.Code, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objectives = append(m.objectives, indexedObjective{obj: obj, vec: vec})
	return nil
}

// AddChunk embeds and indexes a passage, linked to the given objective codes.
func (m *MemoryIndex) AddChunk(ctx context.Context, chunk Chunk, codes ...string) error {
	vec, err := m.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = append(m.chunks, indexedChunk{chunk: chunk, codes: codeSet(codes), vec: vec})
	return nil
}

// AddImage embeds the caption and indexes an image reference.
func (m *MemoryIndex) AddImage(ctx context.Context, img ImageRef, codes ...string) error {
	vec, err := m.embedder.Embed(ctx, img.Caption)
	if err != nil {
		return fmt.Errorf("embed image %s: %w", img.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, indexedImage{img: img, codes: codeSet(codes), vec: vec})
	return nil
}

// SearchObjectives returns objectives matching the query filters, highest
// similarity first.
func (m *MemoryIndex) SearchObjectives(ctx context.Context, q ObjectiveQuery) ([]Objective, error) {
	qvec, err := m.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Objective, 0, len(m.objectives))
	for _, entry := range m.objectives {
		if !matchesGrade(entry.obj.Grade, q.Grade, q.ExamMode) {
			continue
		}
		if q.Subject != "" && !strings.EqualFold(entry.obj.Subject, q.Subject) {
			continue
		}
		obj := entry.obj
		obj.Score = cosine(qvec, entry.vec)
		out = append(out, obj)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return truncate(out, q.Limit), nil
}

// SearchPassages returns passages linked to the query's objective codes (or
// all passages when no codes given), highest similarity first.
func (m *MemoryIndex) SearchPassages(ctx context.Context, q PassageQuery) ([]Chunk, error) {
	qvec, err := m.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Chunk, 0, len(m.chunks))
	for _, entry := range m.chunks {
		if !matchesCodes(entry.codes, q.Codes) {
			continue
		}
		chunk := entry.chunk
		chunk.Score = cosine(qvec, entry.vec)
		out = append(out, chunk)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return truncate(out, q.Limit), nil
}

// SearchImages returns image references linked to the query's objective
// codes, highest similarity first.
func (m *MemoryIndex) SearchImages(ctx context.Context, q PassageQuery) ([]ImageRef, error) {
	qvec, err := m.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ImageRef, 0, len(m.images))
	for _, entry := range m.images {
		if !matchesCodes(entry.codes, q.Codes) {
			continue
		}
		img := entry.img
		img.Score = cosine(qvec, entry.vec)
		out = append(out, img)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return truncate(out, q.Limit), nil
}

func matchesGrade(grade int, target *int, examMode bool) bool {
	if target == nil {
		return true
	}
	if examMode {
		return grade <= *target
	}
	return grade == *target
}

func matchesCodes(have map[string]bool, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, code := range want {
		if have[code] {
			return true
		}
	}
	return false
}

func codeSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
