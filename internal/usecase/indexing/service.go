// Package indexing turns law dumps into embedded passages for a passage backend.
package indexing

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
)

// DefaultBatchSize is the number of passages embedded and written per round.
const DefaultBatchSize = 500

// passageWriter is a passage backend accepting writes.
type passageWriter interface {
	EnsureIndex(ctx context.Context, dim int) error
	Upsert(ctx context.Context, passages []domain.IndexedPassage) error
}

// flusher is implemented by writers that buffer until the end of a run.
type flusher interface {
	Flush(ctx context.Context) error
}

// Stats summarizes one ingest run.
type Stats struct {
	Laws     int
	Articles int
	Passages int
	Tokens   int
	Dim      int
}

// Service ingests laws into a passage backend.
type Service struct {
	embedder  domain.BatchEmbedder
	writer    passageWriter
	chunker   Chunker
	batchSize int
}

// Option configures a Service.
type Option func(*Service)

// WithChunker overrides DefaultChunker.
func WithChunker(c Chunker) Option {
	return func(s *Service) { s.chunker = c }
}

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a Service.
func New(embedder domain.BatchEmbedder, writer passageWriter, opts ...Option) *Service {
	s := &Service{embedder: embedder, writer: writer, chunker: DefaultChunker(), batchSize: DefaultBatchSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ingest chunks, embeds and writes every law. The index is created with the
// dimension of the first returned vector.
func (s *Service) Ingest(ctx context.Context, laws []Law) (Stats, error) {
	log := logger.FromContext(ctx)
	st := Stats{Laws: len(laws)}

	var passages []domain.IndexedPassage
	for _, law := range laws {
		st.Articles += len(law.Articles)
		passages = append(passages, Passages(law, s.chunker)...)
	}
	if len(passages) == 0 {
		return st, fmt.Errorf("%w: no passages to index", domain.ErrInvalidInput)
	}
	log.Info("prepared passages", zap.Int("laws", st.Laws), zap.Int("passages", len(passages)))

	for offset := 0; offset < len(passages); offset += s.batchSize {
		batch := passages[offset:min(offset+s.batchSize, len(passages))]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Content
		}
		res, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			return st, fmt.Errorf("embed passages %d-%d: %w", offset, offset+len(batch), err)
		}
		if len(res.Embeddings) != len(batch) {
			return st, fmt.Errorf("%w: got %d vectors for %d passages",
				domain.ErrEmbeddingProviderError, len(res.Embeddings), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = res.Embeddings[i]
		}

		if st.Dim == 0 {
			st.Dim = len(res.Embeddings[0])
			if err := s.writer.EnsureIndex(ctx, st.Dim); err != nil {
				return st, fmt.Errorf("ensure index: %w", err)
			}
		}
		if err := s.writer.Upsert(ctx, batch); err != nil {
			return st, fmt.Errorf("write passages %d-%d: %w", offset, offset+len(batch), err)
		}

		st.Passages += len(batch)
		st.Tokens += res.TotalTokens
		log.Info("indexed batch", zap.Int("done", st.Passages), zap.Int("total", len(passages)))
	}

	if f, ok := s.writer.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			return st, fmt.Errorf("flush index: %w", err)
		}
	}
	return st, nil
}
