package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/app"
	"github.com/kailas-cloud/qanoneed/internal/config"
	logpkg "github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/metrics"
	"github.com/kailas-cloud/qanoneed/internal/repository/caserecord"
	chiTransport "github.com/kailas-cloud/qanoneed/internal/transport/chi"
	"github.com/kailas-cloud/qanoneed/internal/usecase/casematch"
	"github.com/kailas-cloud/qanoneed/internal/usecase/classify"
	"github.com/kailas-cloud/qanoneed/internal/usecase/consult"
	healthuc "github.com/kailas-cloud/qanoneed/internal/usecase/health"
	"github.com/kailas-cloud/qanoneed/internal/usecase/judgment"
	"github.com/kailas-cloud/qanoneed/internal/usecase/pipeline"
	usageuc "github.com/kailas-cloud/qanoneed/internal/usecase/usage"
	"github.com/kailas-cloud/qanoneed/internal/version"
	"github.com/kailas-cloud/qanoneed/internal/workpool"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting qanoneed API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("generation_provider", cfg.Generation.Provider),
		zap.String("retrieval_backend", cfg.Retrieval.Backend),
	)

	if err := run(&cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Register metrics explicitly (no init())
	metrics.RegisterLLMMetrics()
	metrics.RegisterPipelineMetrics()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	gen, err := app.NewGeneration(ctx, cfg, stores.Redis, logger)
	if err != nil {
		return err
	}

	baseEmbedder := app.NewEmbedder(cfg, logger)
	queryEmbedder, err := app.NewQueryEmbedder(cfg, baseEmbedder, stores.Redis, logger)
	if err != nil {
		return err
	}

	retrievalSvc, err := app.NewRetrieval(cfg, stores, queryEmbedder)
	if err != nil {
		return err
	}

	policy, err := pipeline.ParsePolicy(cfg.Pipeline.OnFailure)
	if err != nil {
		return err
	}
	engine := pipeline.NewEngine(gen.Generator, policy,
		pipeline.WithTemperature(cfg.Generation.Temperature),
		pipeline.WithMaxTokens(cfg.Generation.MaxTokens),
	)
	pool := workpool.New(cfg.Pipeline.Workers).WithGauges(metrics.WorkpoolInflight, metrics.WorkpoolQueued)

	opts := []consult.Option{
		consult.WithTopK(cfg.Retrieval.TopK),
		consult.WithContextPassages(cfg.Retrieval.ContextPassages),
	}

	var classifier *classify.Service
	if cfg.Classifier.IsEnabled() {
		classifier, err = classify.New(gen.Generator, cfg.Classifier.CacheSize, metrics.ClassifierCacheTotal)
		if err != nil {
			return err
		}
		opts = append(opts, consult.WithClassifier(classifier))
	}

	if cfg.CaseMatch.CorpusPath != "" {
		corpus := caserecord.NewLoader(stores.Blob, cfg.CaseMatch.CorpusPath, cfg.CaseMatch.MaxItems, logger)
		matcher := casematch.New(gen.Generator, casematch.Options{
			Model:       cfg.CaseMatch.Model,
			Temperature: cfg.CaseMatch.Temperature,
			MaxTokens:   cfg.CaseMatch.MaxTokens,
			Concurrency: cfg.CaseMatch.Concurrency,
		})
		synth := judgment.New(gen.Generator, judgment.Options{
			MaxMatches:   cfg.Judgment.MaxMatches,
			SummaryChars: cfg.Judgment.SummaryChars,
			Model:        cfg.CaseMatch.Model,
			Temperature:  cfg.CaseMatch.Temperature,
			MaxTokens:    cfg.CaseMatch.MaxTokens,
		})
		opts = append(opts, consult.WithCaseMatching(matcher, synth, corpus, cfg.CaseMatch.BatchSize))
		logger.Info("Virtual court enabled", zap.String("corpus", cfg.CaseMatch.CorpusPath))
	}

	consultSvc := consult.New(retrievalSvc, engine, pool, opts...)

	healthOpts := []healthuc.Option{healthuc.WithEmbedding(baseEmbedder)}
	if pinger := stores.Pinger(); pinger != nil {
		healthOpts = append(healthOpts, healthuc.WithDatabase(pinger))
	}
	healthSvc := healthuc.New(retrievalSvc, gen.Base, healthOpts...)
	usageSvc := usageuc.New(gen.BudgetReader())

	// Go gotcha: a nil *classify.Service wrapped in an interface != nil,
	// so /classify would be mounted over a nil receiver.
	server := chiTransport.NewServer(consultSvc, nil, usageSvc, healthSvc)
	if classifier != nil {
		server = chiTransport.NewServer(consultSvc, classifier, usageSvc, healthSvc)
	}
	handler := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		CORSOrigins: cfg.HTTP.CORSOrigins,
		APIKeys:     cfg.HTTP.APIKeys,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-quit:
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	return nil
}
