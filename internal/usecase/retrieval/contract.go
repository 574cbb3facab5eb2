package retrieval

import (
	"context"

	"github.com/kailas-cloud/qanoneed/internal/domain"
)

// Backend is a loaded passage index.
type Backend interface {
	Search(ctx context.Context, vec []float32, k int) ([]domain.ScoredPassage, error)
	Count(ctx context.Context) (int, error)
}

// Loader opens the backend. It runs once per process on success.
type Loader func(ctx context.Context) (Backend, error)
