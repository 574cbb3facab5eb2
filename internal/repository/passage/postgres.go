package passage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kailas-cloud/qanoneed/internal/db/postgres"
	"github.com/kailas-cloud/qanoneed/internal/domain"
)

// pgStore is the consumer interface for the pgvector table (ISP).
type pgStore interface {
	EnsureSchema(ctx context.Context, dim int) error
	Upsert(ctx context.Context, rows []postgres.Row) error
	Search(ctx context.Context, vec []float32, k int) ([]postgres.Row, error)
	Count(ctx context.Context) (int, error)
}

// PostgresRepo stores passages in a pgvector table.
type PostgresRepo struct {
	store pgStore
}

// NewPostgres creates a Postgres passage repository.
func NewPostgres(s pgStore) *PostgresRepo {
	return &PostgresRepo{store: s}
}

// EnsureIndex creates the table and HNSW index for vectors of dim.
func (r *PostgresRepo) EnsureIndex(ctx context.Context, dim int) error {
	if err := r.store.EnsureSchema(ctx, dim); err != nil {
		return fmt.Errorf("ensure passage schema: %w", err)
	}
	return nil
}

// Upsert writes passages in one transaction.
func (r *PostgresRepo) Upsert(ctx context.Context, passages []domain.IndexedPassage) error {
	rows := make([]postgres.Row, 0, len(passages))
	for i := range passages {
		p := &passages[i]
		if p.ID == "" {
			return fmt.Errorf("passage %d: id is required: %w", i, domain.ErrInvalidInput)
		}
		meta, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata %s: %w", p.ID, err)
		}
		rows = append(rows, postgres.Row{ID: p.ID, Content: p.Content, Metadata: meta, Embedding: p.Embedding})
	}
	if err := r.store.Upsert(ctx, rows); err != nil {
		return fmt.Errorf("write passages: %w", err)
	}
	return nil
}

// Search returns the k nearest passages. Score is 1 - cosine distance.
func (r *PostgresRepo) Search(ctx context.Context, vec []float32, k int) ([]domain.ScoredPassage, error) {
	rows, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]domain.ScoredPassage, 0, len(rows))
	for _, row := range rows {
		var meta domain.PassageMetadata
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &meta); err != nil {
				return nil, fmt.Errorf("decode metadata %s: %w", row.ID, err)
			}
		}
		if meta.SourceID == "" {
			meta.SourceID = row.ID
		}
		out = append(out, domain.ScoredPassage{
			Chunk: domain.PassageChunk{Content: row.Content, Metadata: meta},
			Score: 1 - row.Distance,
		})
	}
	return out, nil
}

// Count returns the number of stored passages.
func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	n, err := r.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count passages: %w", err)
	}
	return n, nil
}
