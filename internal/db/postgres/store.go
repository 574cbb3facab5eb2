// Package postgres is the pgvector passage backend. Passages live in a single
// table with a vector column; KNN uses the cosine distance operator (<=>).
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kailas-cloud/qanoneed/internal/db"
)

// Config holds connection parameters for the pgvector store.
type Config struct {
	DSN   string
	Table string
}

// Row is a passage as stored in the table. Distance is set by Search only.
type Row struct {
	ID        string
	Content   string
	Metadata  []byte // jsonb
	Embedding []float32
	Distance  float64
}

// Store wraps a pgx pool bound to one passage table.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

// NewStore connects to Postgres. The table name must be a plain identifier.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn is required")
	}
	if !db.IsValidIdentifier(cfg.Table) || strings.ContainsAny(cfg.Table, ":-") {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, table: cfg.Table}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// WaitForReady polls Ping until the database responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for postgres: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// EnsureSchema creates the vector extension and passage table when missing.
func (s *Store) EnsureSchema(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("vector dimension must be positive")
	}
	for _, stmt := range schemaStatements(s.table, dim) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return &db.Error{Op: db.OpExec, Err: err}
		}
	}
	return nil
}

// Upsert writes rows in one transaction, replacing rows with the same id.
func (s *Store) Upsert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	query := upsertQuery(s.table)
	for i := range rows {
		r := &rows[i]
		batch.Queue(query, r.ID, r.Content, string(r.Metadata), FormatVector(r.Embedding))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return &db.Error{Op: db.OpExec, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Search returns the k rows nearest to vec by cosine distance, closest first.
func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]Row, error) {
	if len(vec) == 0 {
		return nil, errors.New("vector is required")
	}
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	rows, err := s.pool.Query(ctx, searchQuery(s.table), FormatVector(vec), k)
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var meta string
		if err := rows.Scan(&r.ID, &r.Content, &meta, &r.Distance); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		r.Metadata = []byte(meta)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate passages: %w", err)
	}
	return out, nil
}

// Count returns the number of stored passages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+s.table).Scan(&n); err != nil {
		return 0, &db.Error{Op: db.OpQuery, Err: err}
	}
	return n, nil
}

func schemaStatements(table string, dim int) []string {
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        TEXT PRIMARY KEY,
			content   TEXT NOT NULL,
			metadata  JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding vector(%d) NOT NULL
		)`, table, dim),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)", table, table),
	}
}

func upsertQuery(table string) string {
	return `INSERT INTO ` + table + ` (id, content, metadata, embedding)
		VALUES ($1, $2, $3::jsonb, $4::vector)
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`
}

func searchQuery(table string) string {
	return `SELECT id, content, metadata::text, embedding <=> $1::vector AS distance
		FROM ` + table + `
		ORDER BY embedding <=> $1::vector
		LIMIT $2`
}

// FormatVector renders a pgvector text literal: [0.1,0.2,...].
func FormatVector(v []float32) string {
	if len(v) == 0 {
		return "[]"
	}
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
