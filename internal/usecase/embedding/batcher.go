// Package embedding adapts embedding providers for bulk indexing.
package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
)

// DefaultMaxAPIBatchSize is the largest batch sent in one provider request.
const DefaultMaxAPIBatchSize = 256

// Batcher splits large embedding jobs into provider-sized requests and logs
// each one. Transport metrics are recorded in transport/openai.
type Batcher struct {
	inner     domain.Embedder
	provider  string
	model     string
	batchSize int
}

// NewBatcher wraps inner. batchSize <= 0 means DefaultMaxAPIBatchSize.
func NewBatcher(inner domain.Embedder, provider, model string, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultMaxAPIBatchSize
	}
	return &Batcher{inner: inner, provider: provider, model: model, batchSize: batchSize}
}

// Embed delegates a single text.
func (b *Batcher) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := b.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return res, nil
}

// BatchEmbed embeds texts in chunks of the configured batch size. Output
// order matches input order.
func (b *Batcher) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	log := logger.FromContext(ctx).With(zap.String("provider", b.provider), zap.String("model", b.model))
	start := time.Now()

	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, 0, len(texts))}
	for offset := 0; offset < len(texts); offset += b.batchSize {
		end := min(offset+b.batchSize, len(texts))
		chunk := texts[offset:end]

		res, err := b.embedChunk(ctx, chunk)
		if err != nil {
			log.Error("batch embedding request failed",
				zap.Int("chunk_offset", offset), zap.Int("chunk_size", len(chunk)), zap.Error(err))
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed (chunk %d): %w", offset, err)
		}
		if len(res.Embeddings) != len(chunk) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: chunk %d returned %d vectors for %d texts",
				domain.ErrEmbeddingProviderError, offset, len(res.Embeddings), len(chunk))
		}

		out.Embeddings = append(out.Embeddings, res.Embeddings...)
		out.PromptTokens += res.PromptTokens
		out.TotalTokens += res.TotalTokens
	}

	log.Debug("batch embedding completed",
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("total_tokens", out.TotalTokens),
	)
	return out, nil
}

func (b *Batcher) embedChunk(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if be, ok := b.inner.(domain.BatchEmbedder); ok {
		return be.BatchEmbed(ctx, texts)
	}
	return domain.BatchFallback(ctx, b.inner, texts)
}
