package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/qanoneed/internal/app"
	"github.com/kailas-cloud/qanoneed/internal/usecase/classify"
)

func newClassifyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <question>",
		Short: "Classify a question into a legal domain with the configured provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger, err := g.logger(&cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			// Budget counters are only persisted by the server.
			gen, err := app.NewGeneration(ctx, &cfg, nil, logger)
			if err != nil {
				return err
			}
			svc, err := classify.New(gen.Generator, 0, nil)
			if err != nil {
				return err
			}

			d, err := svc.Classify(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.String())
			return nil
		},
	}
}
