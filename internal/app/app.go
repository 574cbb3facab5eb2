// Package app assembles the provider, storage and retrieval chains shared by
// the API server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/blob"
	"github.com/kailas-cloud/qanoneed/internal/config"
	dbPostgres "github.com/kailas-cloud/qanoneed/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/qanoneed/internal/db/redis"
	"github.com/kailas-cloud/qanoneed/internal/domain"
	"github.com/kailas-cloud/qanoneed/internal/metrics"
	budgetrepo "github.com/kailas-cloud/qanoneed/internal/repository/budget"
	"github.com/kailas-cloud/qanoneed/internal/repository/embcache"
	"github.com/kailas-cloud/qanoneed/internal/repository/flatindex"
	passagerepo "github.com/kailas-cloud/qanoneed/internal/repository/passage"
	geminiGen "github.com/kailas-cloud/qanoneed/internal/transport/gemini"
	openaiTransport "github.com/kailas-cloud/qanoneed/internal/transport/openai"
	generationuc "github.com/kailas-cloud/qanoneed/internal/usecase/generation"
	"github.com/kailas-cloud/qanoneed/internal/usecase/retrieval"
	usageuc "github.com/kailas-cloud/qanoneed/internal/usecase/usage"
)

const (
	budgetDailyTTL   = 48 * time.Hour
	budgetMonthlyTTL = 62 * 24 * time.Hour
)

// Stores holds the connections the configuration asks for. Redis and
// Postgres are nil when not configured; Blob is always set.
type Stores struct {
	Redis    *dbRedis.Store
	Postgres *dbPostgres.Store
	Blob     *blob.Router
}

// OpenStores connects every configured store and waits for Redis readiness.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	s := &Stores{}

	var s3 *blob.S3
	if needsS3(cfg) {
		var err error
		s3, err = blob.NewS3(ctx, blob.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			AccessKey:    cfg.Storage.S3.AccessKey,
			SecretKey:    cfg.Storage.S3.SecretKey,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: %w", err)
		}
	}
	s.Blob = blob.NewRouter(s3)

	if cfg.Database.Redis.Enabled() {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Redis.Addrs,
			Password: cfg.Database.Redis.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		timeout := time.Duration(cfg.Database.Redis.ReadinessTimeout) * time.Second
		if err := store.WaitForReady(ctx, timeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		s.Redis = store
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Database.Redis.Addrs))
	}

	if cfg.Database.Postgres.DSN != "" {
		store, err := dbPostgres.NewStore(ctx, dbPostgres.Config{
			DSN:   cfg.Database.Postgres.DSN,
			Table: cfg.Database.Postgres.Table,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		s.Postgres = store
		logger.Info("Connected to postgres", zap.String("table", cfg.Database.Postgres.Table))
	}

	return s, nil
}

func needsS3(cfg *config.Config) bool {
	return blob.IsS3(cfg.Retrieval.IndexPath) || blob.IsS3(cfg.CaseMatch.CorpusPath) ||
		cfg.Storage.S3.Endpoint != "" || cfg.Storage.S3.AccessKey != ""
}

// Close releases every open connection.
func (s *Stores) Close() {
	if s.Redis != nil {
		s.Redis.Close()
	}
	if s.Postgres != nil {
		s.Postgres.Close()
	}
}

// Pinger returns a checker over every open database, or nil when none is open.
func (s *Stores) Pinger() *Pinger {
	if s.Redis == nil && s.Postgres == nil {
		return nil
	}
	return &Pinger{stores: s}
}

// Pinger pings Redis and Postgres in turn.
type Pinger struct {
	stores *Stores
}

// Ping fails on the first unreachable database.
func (p *Pinger) Ping(ctx context.Context) error {
	if p.stores.Redis != nil {
		if err := p.stores.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if p.stores.Postgres != nil {
		if err := p.stores.Postgres.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// HealthChecker is a provider that can report its own availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type baseGenerator interface {
	domain.Generator
	HealthChecker
	Provider() string
	Model() string
}

// Generation is the assembled generation chain.
type Generation struct {
	// Generator is base -> retry -> budget/instrumentation.
	Generator domain.Generator
	// Base answers provider health checks.
	Base HealthChecker
	// Budget is nil when no limit is configured.
	Budget *generationuc.BudgetTracker
}

// BudgetReader returns the budget as an interface, keeping a nil tracker a nil interface.
func (g *Generation) BudgetReader() usageuc.BudgetReader {
	if g.Budget == nil {
		return nil
	}
	return g.Budget
}

// NewGeneration builds the provider selected by generation.provider and wraps
// it with retries and the token budget. redis may be nil.
func NewGeneration(ctx context.Context, cfg *config.Config, redis *dbRedis.Store, logger *zap.Logger) (*Generation, error) {
	gc := cfg.Generation
	prov := gc.ProviderSettings()

	var base baseGenerator
	switch gc.Provider {
	case "gemini":
		g, err := geminiGen.NewGenerator(ctx, &geminiGen.Config{
			APIKey:      prov.APIKey,
			BaseURL:     prov.BaseURL,
			Model:       gc.Model,
			Temperature: gc.Temperature,
			MaxTokens:   gc.MaxTokens,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		base = g
	default:
		base = openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
			Config: openaiTransport.Config{
				APIKey:   prov.APIKey,
				BaseURL:  prov.BaseURL,
				Model:    gc.Model,
				Provider: gc.Provider,
				Logger:   logger,
			},
			Temperature: gc.Temperature,
			MaxTokens:   gc.MaxTokens,
		})
	}

	out := &Generation{Base: base}

	// Pass a nil interface (not a typed nil pointer) when no budget is set.
	var budget generationuc.BudgetChecker
	if gc.Budget.DailyTokenLimit > 0 || gc.Budget.MonthlyTokenLimit > 0 {
		action := generationuc.BudgetActionWarn
		if gc.Budget.Action == string(generationuc.BudgetActionReject) {
			action = generationuc.BudgetActionReject
		}
		tracker := generationuc.NewBudgetTracker(
			base.Provider(), gc.Budget.DailyTokenLimit, gc.Budget.MonthlyTokenLimit, action, logger,
		).WithKeyPrefix(cfg.Storage.KeyPrefix)
		if redis != nil {
			tracker.WithStore(ctx, budgetrepo.New(redis, budgetDailyTTL, budgetMonthlyTTL))
		}
		out.Budget = tracker
		budget = tracker
	}

	retrying := generationuc.NewRetrying(base, gc.Retry.MaxAttempts, time.Duration(gc.Retry.BaseDelayMS)*time.Millisecond)
	out.Generator = generationuc.NewInstrumented(retrying, base.Provider(), base.Model(), budget)

	logger.Info("Generation provider ready",
		zap.String("provider", base.Provider()),
		zap.String("model", base.Model()),
		zap.Bool("budget", out.Budget != nil),
	)
	return out, nil
}

// NewEmbedder returns the raw provider embedder. An empty embedding.api_key
// falls back to the openai generation credentials.
func NewEmbedder(cfg *config.Config, logger *zap.Logger) *openaiTransport.Embedder {
	ec := cfg.Embedding
	if ec.APIKey == "" {
		fallback := cfg.Generation.Providers["openai"]
		ec.APIKey = fallback.APIKey
		if ec.BaseURL == "" {
			ec.BaseURL = fallback.BaseURL
		}
	}
	return openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Logger:     logger,
	})
}

// NewQueryEmbedder wraps base with the embedding cache: Redis when
// available, else an in-process LRU. A cache size below zero disables it.
func NewQueryEmbedder(cfg *config.Config, base domain.Embedder, redis *dbRedis.Store, logger *zap.Logger) (domain.Embedder, error) {
	if redis != nil {
		return embcache.New(base, redis, cfg.Embedding.Model, metrics.EmbeddingCacheTotal, logger), nil
	}
	if cfg.Retrieval.QueryCacheSize < 0 {
		return base, nil
	}
	mem, err := embcache.NewMemoryStore(cfg.Retrieval.QueryCacheSize)
	if err != nil {
		return nil, err
	}
	return embcache.New(base, mem, cfg.Embedding.Model, metrics.EmbeddingCacheTotal, logger), nil
}

// ErrBackendUnavailable is returned when the selected retrieval backend has no connection.
var ErrBackendUnavailable = errors.New("retrieval backend is not connected")

// NewRetrieval builds the retrieval service over the configured backend.
// The flat index is read on first use.
func NewRetrieval(cfg *config.Config, stores *Stores, embedder domain.Embedder) (*retrieval.Service, error) {
	backend := cfg.Retrieval.Backend

	var load retrieval.Loader
	switch backend {
	case "redis":
		if stores.Redis == nil {
			return nil, fmt.Errorf("%w: redis", ErrBackendUnavailable)
		}
		repo := passagerepo.NewRedis(stores.Redis, cfg.Retrieval.IndexName)
		load = func(context.Context) (retrieval.Backend, error) { return repo, nil }
	case "postgres":
		if stores.Postgres == nil {
			return nil, fmt.Errorf("%w: postgres", ErrBackendUnavailable)
		}
		repo := passagerepo.NewPostgres(stores.Postgres)
		load = func(context.Context) (retrieval.Backend, error) { return repo, nil }
	default:
		path := cfg.Retrieval.IndexPath
		load = func(ctx context.Context) (retrieval.Backend, error) {
			idx, err := flatindex.Load(ctx, stores.Blob, path)
			if err != nil {
				return nil, err
			}
			return idx, nil
		}
	}
	return retrieval.New(backend, embedder, load), nil
}
