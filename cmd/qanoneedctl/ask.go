package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/qanoneed/pkg/sdk"
)

type askOptions struct {
	server string
	apiKey string
	mode   string
}

func newAskCmd() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a running qanoneed server a legal question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, strings.Join(args, " "))
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.server, "server", "http://localhost:8000", "API base URL")
	f.StringVar(&opts.apiKey, "api-key", os.Getenv("QANONEED_API_KEY"), "bearer token (default: $QANONEED_API_KEY)")
	f.StringVar(&opts.mode, "mode", "chat", "chat, roadmap or stream")
	return cmd
}

func runAsk(cmd *cobra.Command, opts *askOptions, question string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var clientOpts []sdk.Option
	if opts.apiKey != "" {
		clientOpts = append(clientOpts, sdk.WithAPIKey(opts.apiKey))
	}
	client, err := sdk.New(opts.server, clientOpts...)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch opts.mode {
	case "chat":
		answer, err := client.Chat(ctx, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
	case "roadmap":
		answer, err := client.Roadmap(ctx, question)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, answer)
	case "stream":
		var streamErr error
		err := client.Stream(ctx, question, func(event, data string) {
			if event == sdk.StreamEventError {
				streamErr = fmt.Errorf("stream: %s", data)
				return
			}
			fmt.Fprintln(out, data)
		})
		if err != nil {
			return err
		}
		return streamErr
	default:
		return fmt.Errorf("--mode must be chat, roadmap or stream, got %q", opts.mode)
	}
	return nil
}
