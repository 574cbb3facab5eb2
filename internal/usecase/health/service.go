package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckEmpty indicates a reachable but empty passage index.
	CheckEmpty CheckResult = "empty"
)

// DefaultTimeout bounds each individual check.
const DefaultTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates readiness checks.
type Service struct {
	passages   PassageCounter
	generation ProviderChecker
	embedding  ProviderChecker
	db         DBPinger
	timeout    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithDatabase adds the database check.
func WithDatabase(db DBPinger) Option {
	return func(s *Service) { s.db = db }
}

// WithEmbedding adds the embedding provider check.
func WithEmbedding(e ProviderChecker) Option {
	return func(s *Service) { s.embedding = e }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Service. generation can be nil.
func New(passages PassageCounter, generation ProviderChecker, opts ...Option) *Service {
	s := &Service{passages: passages, generation: generation, timeout: DefaultTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Check runs readiness checks against all configured components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.passages != nil {
		n, err := withTimeout(ctx, s.timeout, func(ctx context.Context) (int, error) { return s.passages.Count(ctx) })
		switch {
		case err != nil:
			checks["passages"] = CheckError
		case n == 0:
			checks["passages"] = CheckEmpty
		default:
			checks["passages"] = CheckOK
		}
	}
	if s.generation != nil {
		checks["generation"] = s.probe(ctx, s.generation.HealthCheck)
	}
	if s.embedding != nil {
		checks["embedding"] = s.probe(ctx, s.embedding.HealthCheck)
	}
	if s.db != nil {
		checks["database"] = s.probe(ctx, s.db.Ping)
	}

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}

func (s *Service) probe(ctx context.Context, fn func(ctx context.Context) error) CheckResult {
	_, err := withTimeout(ctx, s.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if err != nil {
		return CheckError
	}
	return CheckOK
}

func withTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
