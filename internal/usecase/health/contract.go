package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// PassageCounter reports how many passages the retrieval backend serves.
// Counting forces the lazy index load.
type PassageCounter interface {
	Count(ctx context.Context) (int, error)
}

// ProviderChecker checks generation or embedding provider availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
