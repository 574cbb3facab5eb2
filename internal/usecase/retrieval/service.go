// Package retrieval answers top-K semantic passage queries over a lazily
// loaded backend.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/lazy"
	"github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/metrics"
)

// Service embeds the query and searches the backend.
type Service struct {
	name     string
	embedder domain.Embedder
	backend  *lazy.Value[Backend]
}

// New creates a retrieval service. name labels metrics (flat, redis, postgres).
func New(name string, embedder domain.Embedder, load Loader) *Service {
	return &Service{
		name:     name,
		embedder: embedder,
		backend:  lazy.New(func(ctx context.Context) (Backend, error) { return load(ctx) }),
	}
}

// Search returns at most k passages ordered by non-increasing score.
// No hits is (nil, nil). Load and query failures wrap domain.ErrRetrievalFailure.
func (s *Service) Search(ctx context.Context, query string, k int) ([]domain.ScoredPassage, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d: %w", k, domain.ErrInvalidInput)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query: %w", domain.ErrInvalidInput)
	}

	start := time.Now()
	hits, err := s.search(ctx, query, k)
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RetrievalDuration.WithLabelValues(s.name, status).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.FromContext(ctx).Error("retrieval failed", zap.String("backend", s.name), zap.Error(err))
		return nil, err
	}
	return hits, nil
}

func (s *Service) search(ctx context.Context, query string, k int) ([]domain.ScoredPassage, error) {
	b, err := s.backend.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s index: %w", domain.ErrRetrievalFailure, s.name, err)
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrRetrievalFailure, err)
	}

	hits, err := b.Search(ctx, emb.Embedding, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRetrievalFailure, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of indexed passages, loading the backend if needed.
func (s *Service) Count(ctx context.Context) (int, error) {
	b, err := s.backend.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: load %s index: %w", domain.ErrRetrievalFailure, s.name, err)
	}
	n, err := b.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrRetrievalFailure, err)
	}
	return n, nil
}

// Loaded reports whether the backend has been opened.
func (s *Service) Loaded() bool { return s.backend.Loaded() }

// Backend returns the metrics label of the backend.
func (s *Service) Backend() string { return s.name }
