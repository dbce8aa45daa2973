package progress

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed progress store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS tracked_objectives (
			user_id TEXT NOT NULL,
			objective_code TEXT NOT NULL,
			confidence REAL NOT NULL,
			source_session TEXT NOT NULL,
			tracked_at TEXT NOT NULL,
			PRIMARY KEY (user_id, objective_code)
		)
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tracked_objectives table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Upsert inserts or replaces the record for (UserID, ObjectiveCode).
func (s *SQLiteStore) Upsert(ctx context.Context, rec Record) error {
	trackedAt := rec.TrackedAt
	if trackedAt.IsZero() {
		trackedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tracked_objectives (user_id, objective_code, confidence, source_session, tracked_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, objective_code) DO UPDATE SET
			confidence = excluded.confidence,
			source_session = excluded.source_session,
			tracked_at = excluded.tracked_at
	`
	if _, err := s.db.ExecContext(ctx, query,
		rec.UserID, rec.ObjectiveCode, rec.Confidence, rec.SourceSession, trackedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert tracked objective %s/%s: %w", rec.UserID, rec.ObjectiveCode, err)
	}
	return nil
}

// List returns a user's tracked objectives ordered by code.
func (s *SQLiteStore) List(ctx context.Context, userID string) ([]Record, error) {
	query := `
		SELECT user_id, objective_code, confidence, source_session, tracked_at
		FROM tracked_objectives
		WHERE user_id = ?
		ORDER BY objective_code
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tracked objectives for %s: %w", userID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var rec Record
		var trackedAt string
		if err := rows.Scan(&rec.UserID, &rec.ObjectiveCode, &rec.Confidence, &rec.SourceSession, &trackedAt); err != nil {
			return nil, fmt.Errorf("scan tracked objective: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, trackedAt); err == nil {
			rec.TrackedAt = ts
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
