package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/metrics"
)

func TestInstrumented_RecordsBudget(t *testing.T) {
	bt := NewBudgetTracker("instr-test", 1000, 0, BudgetActionReject, nil)
	g := NewInstrumented(&mockGenerator{}, "instr-test", "gpt-4o", bt)

	res, err := g.Generate(context.Background(), domain.GenerationRequest{Prompt: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "ok" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if bt.DailyUsed() != 10 {
		t.Errorf("daily used = %d, want 10", bt.DailyUsed())
	}
	got := testutil.ToFloat64(metrics.GenerationBudgetTokensRemaining.WithLabelValues("instr-test", "daily"))
	if got != 990 {
		t.Errorf("remaining gauge = %v, want 990", got)
	}
}

func TestInstrumented_RejectsOverBudget(t *testing.T) {
	inner := &mockGenerator{}
	bt := NewBudgetTracker("openai", 10, 0, BudgetActionReject, nil)
	bt.Record(10)

	_, err := NewInstrumented(inner, "openai", "gpt-4o", bt).Generate(context.Background(), domain.GenerationRequest{})
	if !errors.Is(err, domain.ErrGenerationQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("provider must not be called, got %d calls", inner.calls)
	}
}

func TestInstrumented_WrapsError(t *testing.T) {
	inner := &mockGenerator{fn: func(int, domain.GenerationRequest) (domain.GenerationResult, error) {
		return domain.GenerationResult{}, domain.ErrGenerationProvider
	}}
	_, err := NewInstrumented(inner, "openai", "gpt-4o", nil).Generate(context.Background(), domain.GenerationRequest{})
	if !errors.Is(err, domain.ErrGenerationProvider) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestRetrying_RetriesRetryable(t *testing.T) {
	inner := &mockGenerator{fn: func(call int, _ domain.GenerationRequest) (domain.GenerationResult, error) {
		if call < 3 {
			return domain.GenerationResult{}, retryableErr{retry: true}
		}
		return domain.GenerationResult{Text: "third time"}, nil
	}}
	res, err := NewRetrying(inner, 3, time.Millisecond).Generate(context.Background(), domain.GenerationRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != "third time" || inner.calls != 3 {
		t.Errorf("text=%q calls=%d", res.Text, inner.calls)
	}
}

func TestRetrying_PolicyDoublesThenStops(t *testing.T) {
	p := NewRetrying(&mockGenerator{}, 3, 10*time.Millisecond).policy(context.Background())

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, backoff.Stop}
	for i, w := range want {
		if got := p.NextBackOff(); got != w {
			t.Errorf("wait %d = %v, want %v", i, got, w)
		}
	}
}

func TestRetrying_SingleAttemptNeverWaits(t *testing.T) {
	p := NewRetrying(&mockGenerator{}, 0, time.Second).policy(context.Background())
	if got := p.NextBackOff(); got != backoff.Stop {
		t.Errorf("got %v, want Stop", got)
	}
}

func TestRetrying_StopsOnPermanentError(t *testing.T) {
	inner := &mockGenerator{fn: func(int, domain.GenerationRequest) (domain.GenerationResult, error) {
		return domain.GenerationResult{}, retryableErr{retry: false}
	}}
	_, err := NewRetrying(inner, 5, 0).Generate(context.Background(), domain.GenerationRequest{})
	if err == nil || inner.calls != 1 {
		t.Fatalf("expected one call and an error, got calls=%d err=%v", inner.calls, err)
	}
}

func TestRetrying_GivesUpAfterAttempts(t *testing.T) {
	inner := &mockGenerator{fn: func(int, domain.GenerationRequest) (domain.GenerationResult, error) {
		return domain.GenerationResult{}, retryableErr{retry: true}
	}}
	_, err := NewRetrying(inner, 2, 0).Generate(context.Background(), domain.GenerationRequest{})
	var re retryableErr
	if !errors.As(err, &re) || inner.calls != 2 {
		t.Fatalf("calls=%d err=%v", inner.calls, err)
	}
}

func TestRetrying_ContextCancelledWhileWaiting(t *testing.T) {
	inner := &mockGenerator{fn: func(int, domain.GenerationRequest) (domain.GenerationResult, error) {
		return domain.GenerationResult{}, retryableErr{retry: true}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRetrying(inner, 3, time.Hour).Generate(ctx, domain.GenerationRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
