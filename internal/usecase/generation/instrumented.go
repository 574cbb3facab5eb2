// Package generation decorates a domain.Generator with retries, token
// budget enforcement and structured logging.
package generation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/metrics"
)

// BudgetChecker is the local interface for budget enforcement.
type BudgetChecker interface {
	Check(ctx context.Context) error
	Record(tokens int64)
	RemainingDaily() int64
	RemainingMonthly() int64
}

// Instrumented enforces the token budget around every call and logs its outcome.
// Request, duration and token metrics are recorded by the transports.
type Instrumented struct {
	inner    domain.Generator
	provider string
	model    string
	budget   BudgetChecker
}

// NewInstrumented wraps a generator. budget may be nil.
func NewInstrumented(inner domain.Generator, provider, model string, budget BudgetChecker) *Instrumented {
	return &Instrumented{inner: inner, provider: provider, model: model, budget: budget}
}

// Generate implements domain.Generator.
func (g *Instrumented) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	log := logger.FromContext(ctx)
	model := g.model
	if req.Model != "" {
		model = req.Model
	}

	if g.budget != nil {
		if err := g.budget.Check(ctx); err != nil {
			log.Error("generation budget exceeded",
				zap.String("provider", g.provider), zap.String("model", model), zap.Error(err))
			return domain.GenerationResult{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()
	res, err := g.inner.Generate(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Error("generation failed",
			zap.String("provider", g.provider),
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.GenerationResult{}, fmt.Errorf("generate: %w", err)
	}

	if g.budget != nil && res.TotalTokens > 0 {
		g.budget.Record(int64(res.TotalTokens))
		remaining := metrics.GenerationBudgetTokensRemaining
		remaining.WithLabelValues(g.provider, "daily").Set(float64(g.budget.RemainingDaily()))
		remaining.WithLabelValues(g.provider, "monthly").Set(float64(g.budget.RemainingMonthly()))
	}

	log.Debug("generation completed",
		zap.String("provider", g.provider),
		zap.String("model", model),
		zap.Duration("duration", duration),
		zap.Int("prompt_tokens", res.PromptTokens),
		zap.Int("completion_tokens", res.CompletionTokens),
	)
	return res, nil
}
