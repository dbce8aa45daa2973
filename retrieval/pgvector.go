package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PGVector is a Postgres/pgvector-backed Retriever for production
// deployments.
//
// Expected schema (cosine distance, `vector_cosine_ops` indexes recommended):
//
//	objectives(code text, description text, grade int, subject text, embedding vector)
//	passages(id text, text text, source text, page int, codes text[], embedding vector)
//	figures(id text, url text, caption text, codes text[], embedding vector)
//
// Queries are embedded with the configured Embedder and matched with the
// `<=>` cosine distance operator; scores are reported as 1 - distance.
type PGVector struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// NewPGVector connects to Postgres and registers the pgvector types on every
// pooled connection.
func NewPGVector(ctx context.Context, dsn string, embedder Embedder) (*PGVector, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PGVector{pool: pool, embedder: embedder}, nil
}

// SearchObjectives runs a filtered nearest-neighbor query over objectives.
func (p *PGVector) SearchObjectives(ctx context.Context, q ObjectiveQuery) ([]Objective, error) {
	qvec, err := p.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var (
		where []string
		args  []interface{}
	)
	args = append(args, pgvector.NewVector(qvec))
	if q.Grade != nil {
		args = append(args, *q.Grade)
		op := "="
		if q.ExamMode {
			op = "<="
		}
		where = append(where, fmt.Sprintf("grade %s $%d", op, len(args)))
	}
	if q.Subject != "" {
		args = append(args, q.Subject)
		where = append(where, fmt.Sprintf("lower(subject) = lower($%d)", len(args)))
	}

	query := "SELECT code, description, grade, subject, 1 - (embedding <=> $1) AS score FROM objectives"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limitOrDefault(q.Limit))
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query objectives: %w", err)
	}
	defer rows.Close()

	var out []Objective
	for rows.Next() {
		var obj Objective
		if err := rows.Scan(&obj.Code, &obj.Description, &obj.Grade, &obj.Subject, &obj.Score); err != nil {
			return nil, fmt.Errorf("scan objective: %w", err)
		}
		out = append(out, obj)
	}
	return out, rows.Err()
}

// SearchPassages runs a nearest-neighbor query over passages, optionally
// restricted to passages linked to the given objective codes.
func (p *PGVector) SearchPassages(ctx context.Context, q PassageQuery) ([]Chunk, error) {
	qvec, err := p.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	args := []interface{}{pgvector.NewVector(qvec)}
	query := "SELECT id, text, source, page, 1 - (embedding <=> $1) AS score FROM passages"
	if len(q.Codes) > 0 {
		args = append(args, q.Codes)
		query += fmt.Sprintf(" WHERE codes && $%d", len(args))
	}
	args = append(args, limitOrDefault(q.Limit))
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	var out []Chunk
	for rows.Next() {
		var chunk Chunk
		if err := rows.Scan(&chunk.ID, &chunk.Text, &chunk.Source, &chunk.Page, &chunk.Score); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// SearchImages runs a nearest-neighbor query over figures, optionally
// restricted to figures linked to the given objective codes.
func (p *PGVector) SearchImages(ctx context.Context, q PassageQuery) ([]ImageRef, error) {
	qvec, err := p.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	args := []interface{}{pgvector.NewVector(qvec)}
	query := "SELECT id, url, caption, 1 - (embedding <=> $1) AS score FROM figures"
	if len(q.Codes) > 0 {
		args = append(args, q.Codes)
		query += fmt.Sprintf(" WHERE codes && $%d", len(args))
	}
	args = append(args, limitOrDefault(q.Limit))
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query figures: %w", err)
	}
	defer rows.Close()

	var out []ImageRef
	for rows.Next() {
		var img ImageRef
		if err := rows.Scan(&img.ID, &img.URL, &img.Caption, &img.Score); err != nil {
			return nil, fmt.Errorf("scan figure: %w", err)
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (p *PGVector) Close() {
	p.pool.Close()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}
