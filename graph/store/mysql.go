package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL-backed Store implementation for multi-instance
// deployments where threads must survive process restarts and be resumable
// from any node.
type MySQLStore[S any] struct {
	db *sql.DB
}

// NewMySQLStore connects with the given DSN and ensures the schema exists.
// The DSN should include parseTime=true so TIMESTAMP columns scan into
// time.Time.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore[S]{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (m *MySQLStore[S]) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS workflow_threads (
			thread_id VARCHAR(191) PRIMARY KEY,
			stage VARCHAR(191) NOT NULL,
			step INT NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			state JSON NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)
	`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create workflow_threads table: %w", err)
	}
	return nil
}

// Save upserts the snapshot for a thread, incrementing its version.
func (m *MySQLStore[S]) Save(ctx context.Context, threadID string, snap Snapshot[S]) error {
	stateJSON, err := json.Marshal(snap.State)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	query := `
		INSERT INTO workflow_threads (thread_id, stage, step, version, state)
		VALUES (?, ?, ?, 1, ?)
		ON DUPLICATE KEY UPDATE
			stage = VALUES(stage),
			step = VALUES(step),
			version = version + 1,
			state = VALUES(state)
	`
	if _, err := m.db.ExecContext(ctx, query, threadID, snap.Stage, snap.Step, string(stateJSON)); err != nil {
		return fmt.Errorf("save snapshot for thread %s: %w", threadID, err)
	}
	return nil
}

// Load returns the latest snapshot for a thread, or ErrNotFound.
func (m *MySQLStore[S]) Load(ctx context.Context, threadID string) (Snapshot[S], error) {
	var snap Snapshot[S]
	var stateJSON string

	query := `
		SELECT stage, step, version, state, updated_at
		FROM workflow_threads
		WHERE thread_id = ?
	`
	row := m.db.QueryRowContext(ctx, query, threadID)
	if err := row.Scan(&snap.Stage, &snap.Step, &snap.Version, &stateJSON, &snap.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, ErrNotFound
		}
		return snap, fmt.Errorf("load snapshot for thread %s: %w", threadID, err)
	}
	if err := json.Unmarshal([]byte(stateJSON), &snap.State); err != nil {
		return snap, fmt.Errorf("unmarshal state for thread %s: %w", threadID, err)
	}
	snap.ThreadID = threadID
	return snap, nil
}

// Delete removes a thread's snapshot.
func (m *MySQLStore[S]) Delete(ctx context.Context, threadID string) error {
	if _, err := m.db.ExecContext(ctx, "DELETE FROM workflow_threads WHERE thread_id = ?", threadID); err != nil {
		return fmt.Errorf("delete snapshot for thread %s: %w", threadID, err)
	}
	return nil
}

// Backend returns "mysql".
func (m *MySQLStore[S]) Backend() string { return "mysql" }

// Close closes the underlying database.
func (m *MySQLStore[S]) Close() error {
	return m.db.Close()
}
