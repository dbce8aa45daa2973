package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store implementation.
//
// A single-file database with zero setup, suited to development and
// single-process deployments. Uses WAL mode so readers are not blocked by the
// writer. State is stored as a JSON text column.
type SQLiteStore[S any] struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for an in-memory database in tests.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workflow_threads (
			thread_id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			step INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			state TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create workflow_threads table: %w", err)
	}
	return nil
}

// Save upserts the snapshot for a thread, incrementing its version.
func (s *SQLiteStore[S]) Save(ctx context.Context, threadID string, snap Snapshot[S]) error {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	query := `
		INSERT INTO workflow_threads (thread_id, stage, step, version, state, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			stage = excluded.stage,
			step = excluded.step,
			version = workflow_threads.version + 1,
			state = excluded.state,
			updated_at = excluded.updated_at
	`
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	// Stored as RFC3339 text; the sqlite driver has no native timestamp type.
	if _, err := s.db.ExecContext(ctx, query, threadID, snap.Stage, snap.Step, string(stateJSON), updatedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save snapshot for thread %s: %w", threadID, err)
	}
	return nil
}

// Load returns the latest snapshot for a thread, or ErrNotFound.
func (s *SQLiteStore[S]) Load(ctx context.Context, threadID string) (Snapshot[S], error) {
	var snap Snapshot[S]
	var stateJSON, updatedAt string

	query := `
		SELECT stage, step, version, state, updated_at
		FROM workflow_threads
		WHERE thread_id = ?
	`
	row := s.db.QueryRowContext(ctx, query, threadID)
	if err := row.Scan(&snap.Stage, &snap.Step, &snap.Version, &stateJSON, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, ErrNotFound
		}
		return snap, fmt.Errorf("load snapshot for thread %s: %w", threadID, err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		return snap, fmt.Errorf("unmarshal state for thread %s: %w", threadID, err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		snap.UpdatedAt = ts
	}
	snap.ThreadID = threadID
	return snap, nil
}

// Delete removes a thread's snapshot.
func (s *SQLiteStore[S]) Delete(ctx context.Context, threadID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM workflow_threads WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("delete snapshot for thread %s: %w", threadID, err)
	}
	return nil
}

// Backend returns "sqlite".
func (s *SQLiteStore[S]) Backend() string { return "sqlite" }

// Close closes the underlying database.
func (s *SQLiteStore[S]) Close() error {
	return s.db.Close()
}
