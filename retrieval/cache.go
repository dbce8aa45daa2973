package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cached wraps a Retriever with an in-process TTL cache.
//
// Repeated questions are common in a classroom setting, and a full retrieval
// pass costs an embedding call plus a vector query. Cache keys cover every
// query field that affects results, including the relaxation-controlled
// filters, so relaxed retries never hit a stricter attempt's entry.
type Cached struct {
	inner Retriever
	cache *gocache.Cache
}

// NewCached wraps inner with a cache using the given TTL (default 5 minutes).
func NewCached(inner Retriever, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cached{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// SearchObjectives serves from cache when possible.
func (c *Cached) SearchObjectives(ctx context.Context, q ObjectiveQuery) ([]Objective, error) {
	key := objectiveKey(q)
	if hit, ok := c.cache.Get(key); ok {
		return hit.([]Objective), nil
	}
	out, err := c.inner.SearchObjectives(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, out)
	return out, nil
}

// SearchPassages serves from cache when possible.
func (c *Cached) SearchPassages(ctx context.Context, q PassageQuery) ([]Chunk, error) {
	key := "passages|" + passageKey(q)
	if hit, ok := c.cache.Get(key); ok {
		return hit.([]Chunk), nil
	}
	out, err := c.inner.SearchPassages(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, out)
	return out, nil
}

// SearchImages serves from cache when possible.
func (c *Cached) SearchImages(ctx context.Context, q PassageQuery) ([]ImageRef, error) {
	key := "images|" + passageKey(q)
	if hit, ok := c.cache.Get(key); ok {
		return hit.([]ImageRef), nil
	}
	out, err := c.inner.SearchImages(ctx, q)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, out)
	return out, nil
}

func objectiveKey(q ObjectiveQuery) string {
	grade := "any"
	if q.Grade != nil {
		grade = fmt.Sprintf("%d", *q.Grade)
	}
	return fmt.Sprintf("objectives|%s|%s|%s|%t|%d", q.Text, grade, strings.ToLower(q.Subject), q.ExamMode, q.Limit)
}

func passageKey(q PassageQuery) string {
	return fmt.Sprintf("%s|%s|%d", q.Text, strings.Join(q.Codes, ","), q.Limit)
}
