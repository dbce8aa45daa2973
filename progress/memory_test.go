package progress

import (
	"context"
	"testing"
	"time"
)

func TestMemStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	rec := Record{
		UserID:        "u1",
		ObjectiveCode: "M.8.2.2.1",
		Confidence:    0.7,
		SourceSession: "s1",
		TrackedAt:     time.Now().UTC(),
	}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rec.Confidence = 0.9
	rec.SourceSession = "s2"
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	out, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one record per (user, objective), got %d", len(out))
	}
	if out[0].Confidence != 0.9 || out[0].SourceSession != "s2" {
		t.Fatalf("upsert did not replace the record: %+v", out[0])
	}
}

func TestMemStoreListIsSortedAndScoped(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()

	for _, code := range []string{"M.8.3.1.2", "M.8.2.2.1", "F.7.3.1.1"} {
		if err := s.Upsert(ctx, Record{UserID: "u1", ObjectiveCode: code}); err != nil {
			t.Fatalf("Upsert %s: %v", code, err)
		}
	}
	if err := s.Upsert(ctx, Record{UserID: "u2", ObjectiveCode: "B.9.1.2.1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	out, err := s.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 records for u1, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].ObjectiveCode > out[i].ObjectiveCode {
			t.Fatalf("records not sorted by code: %+v", out)
		}
	}

	other, err := s.List(ctx, "u3")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no records for unknown user, got %d", len(other))
	}
}
