package generation

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/logger"
)

const maxRetryDelay = 30 * time.Second

// Retrying repeats calls that fail with a retryable provider error.
// The delay doubles after every attempt.
type Retrying struct {
	inner     domain.Generator
	attempts  int
	baseDelay time.Duration
}

// NewRetrying wraps a generator. attempts < 1 means a single try.
func NewRetrying(inner domain.Generator, attempts int, baseDelay time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{inner: inner, attempts: attempts, baseDelay: baseDelay}
}

// Generate implements domain.Generator.
func (r *Retrying) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	attempt := 0
	op := func() (domain.GenerationResult, error) {
		attempt++
		res, err := r.inner.Generate(ctx, req)
		if err != nil && !retryable(err) {
			return domain.GenerationResult{}, backoff.Permanent(err)
		}
		return res, err
	}
	notify := func(err error, delay time.Duration) {
		logger.FromContext(ctx).Warn("retrying generation",
			zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}

	res, err := backoff.RetryNotifyWithData(op, r.policy(ctx), notify)
	if err != nil {
		return domain.GenerationResult{}, err
	}
	return res, nil
}

// policy yields attempts-1 waits of baseDelay, 2*baseDelay, ... and stops
// early once ctx is done.
func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.baseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = maxRetryDelay
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.attempts-1)), ctx)
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var r domain.Retryable
	return errors.As(err, &r) && r.Retryable()
}
