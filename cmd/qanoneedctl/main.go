package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/qanoneed/internal/config"
	logpkg "github.com/kailas-cloud/qanoneed/internal/logger"
	"github.com/kailas-cloud/qanoneed/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	env        string
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "qanoneedctl",
		Short:         "Operator CLI for the qanoneed legal consultation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default: config/$ENV.yaml)")
	root.PersistentFlags().StringVar(&g.env, "env", config.GetEnv(), "environment: local, dev, prod, test")

	root.AddCommand(
		newIndexCmd(g),
		newAskCmd(),
		newClassifyCmd(g),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration from --config, or by --env.
func (g *globals) load() (config.Config, error) {
	if g.configPath == "" {
		return config.Load(g.env)
	}
	data, err := os.ReadFile(filepath.Clean(g.configPath))
	if err != nil {
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}
	return config.Parse(data)
}

func (g *globals) logger(cfg *config.Config) (*zap.Logger, error) {
	return logpkg.NewLogger(g.env, cfg.Logging.Level)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
