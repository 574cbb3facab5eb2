package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/app"
	"github.com/kailas-cloud/qanoneed/internal/config"
	"github.com/kailas-cloud/qanoneed/internal/repository/flatindex"
	passagerepo "github.com/kailas-cloud/qanoneed/internal/repository/passage"
	embeddinguc "github.com/kailas-cloud/qanoneed/internal/usecase/embedding"
	"github.com/kailas-cloud/qanoneed/internal/usecase/indexing"
)

type indexOptions struct {
	source    string
	backend   string
	out       string
	batchSize int
	chunk     indexing.Chunker
}

func newIndexCmd(g *globals) *cobra.Command {
	opts := &indexOptions{chunk: indexing.DefaultChunker()}

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Chunk, embed and store a law corpus",
		Long: `Reads law JSONL (local path or s3://bucket/key), splits articles into
overlapping passages, embeds them in batches and writes them to the chosen
backend. The flat backend writes an index JSONL to --out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger, err := g.logger(&cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runIndex(cmd, &cfg, opts, logger)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.source, "source", "", "law corpus path or s3://bucket/key")
	f.StringVar(&opts.backend, "backend", "flat", "passage backend: flat, redis or postgres")
	f.StringVar(&opts.out, "out", "", "output path for the flat backend (default: retrieval.index_path)")
	f.IntVar(&opts.batchSize, "batch-size", indexing.DefaultBatchSize, "passages per embedding batch")
	f.IntVar(&opts.chunk.Size, "chunk-size", opts.chunk.Size, "passage window in runes")
	f.IntVar(&opts.chunk.Overlap, "chunk-overlap", opts.chunk.Overlap, "overlap between windows in runes")
	f.IntVar(&opts.chunk.MaxWhole, "max-whole", opts.chunk.MaxWhole, "articles up to this many runes stay whole")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func runIndex(cmd *cobra.Command, cfg *config.Config, opts *indexOptions, logger *zap.Logger) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch opts.backend {
	case "flat":
		if opts.out == "" {
			opts.out = cfg.Retrieval.IndexPath
		}
		if opts.out == "" {
			return fmt.Errorf("--out is required for the flat backend")
		}
		// The flat backend needs no database connection.
		cfg.Database.Redis.Addrs = nil
		cfg.Database.Postgres.DSN = ""
	case "redis", "postgres":
	default:
		return fmt.Errorf("--backend must be flat, redis or postgres, got %q", opts.backend)
	}

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close()

	svc, err := newIndexer(cfg, stores, opts, logger)
	if err != nil {
		return err
	}

	rc, err := stores.Blob.Open(ctx, opts.source)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	laws, err := indexing.ReadLaws(rc)
	_ = rc.Close()
	if err != nil {
		return err
	}

	stats, err := svc.Ingest(ctx, laws)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(),
		"indexed %d laws, %d articles, %d passages (dim %d, %d tokens) into %s\n",
		stats.Laws, stats.Articles, stats.Passages, stats.Dim, stats.Tokens, target(opts),
	)
	return nil
}

func newIndexer(cfg *config.Config, stores *app.Stores, opts *indexOptions, logger *zap.Logger) (*indexing.Service, error) {
	base := app.NewEmbedder(cfg, logger)
	embedder := embeddinguc.NewBatcher(base, "openai", cfg.Embedding.Model, 0)
	svcOpts := []indexing.Option{indexing.WithChunker(opts.chunk), indexing.WithBatchSize(opts.batchSize)}

	switch opts.backend {
	case "redis":
		if stores.Redis == nil {
			return nil, fmt.Errorf("%w: set database.redis.addrs", app.ErrBackendUnavailable)
		}
		return indexing.New(embedder, passagerepo.NewRedis(stores.Redis, cfg.Retrieval.IndexName), svcOpts...), nil
	case "postgres":
		if stores.Postgres == nil {
			return nil, fmt.Errorf("%w: set database.postgres.dsn", app.ErrBackendUnavailable)
		}
		return indexing.New(embedder, passagerepo.NewPostgres(stores.Postgres), svcOpts...), nil
	default:
		return indexing.New(embedder, flatindex.NewWriter(stores.Blob, opts.out), svcOpts...), nil
	}
}

func target(opts *indexOptions) string {
	if opts.backend == "flat" {
		return opts.out
	}
	return opts.backend
}
