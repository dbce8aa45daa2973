package store

import (
	"context"
	"errors"
	"testing"
)

type checkoutState struct {
	Question string `json:"question"`
	Step     int    `json:"step"`
}

func TestMemStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore[checkoutState]()

	snap := Snapshot[checkoutState]{
		Stage: "retrieve",
		Step:  3,
		State: checkoutState{Question: "fotosentez nedir", Step: 3},
	}
	if err := s.Save(ctx, "t1", snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ThreadID != "t1" || got.Stage != "retrieve" || got.State.Question != "fotosentez nedir" {
		t.Fatalf("unexpected snapshot %+v", got)
	}
	if got.Version != 1 {
		t.Fatalf("first save should be version 1, got %d", got.Version)
	}
}

func TestMemStoreVersionIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore[checkoutState]()

	for i := 1; i <= 3; i++ {
		if err := s.Save(ctx, "t1", Snapshot[checkoutState]{Step: i}); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}
	got, err := s.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Version != 3 || got.Step != 3 {
		t.Fatalf("expected version 3 step 3, got %+v", got)
	}
}

func TestMemStoreLoadMissing(t *testing.T) {
	s := NewMemStore[checkoutState]()
	_, err := s.Load(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore[checkoutState]()
	if err := s.Save(ctx, "t1", Snapshot[checkoutState]{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(ctx, "t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Load(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
