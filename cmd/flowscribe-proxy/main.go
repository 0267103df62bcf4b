package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowscribe/pkg/cmd"
	"github.com/dukex/flowscribe/pkg/log"
	"github.com/dukex/flowscribe/pkg/proxy"
	"github.com/urfave/cli/v3"
)

func main() {
	if err := cmd.LoadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	command := &cli.Command{
		Name:                  "flowscribe-proxy",
		Usage:                 "Relay n8n API calls and validate credentials for flowscribe clients",
		EnableShellCompletion: true,
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Address to listen on",
				Sources: cli.EnvVars("FLOWSCRIBE_PROXY_ADDR"),
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Bearer token clients must send; empty disables the check",
				Sources: cli.EnvVars("FLOWSCRIBE_PROXY_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "tag-filter",
				Usage:   "Tag a workflow needs to be listed; empty lists every workflow",
				Sources: cli.EnvVars("FLOWSCRIBE_TAG_FILTER"),
			},
			&cli.StringFlag{
				Name:    "openrouter-url",
				Usage:   "OpenRouter chat completions URL used to validate keys",
				Sources: cli.EnvVars("OPENROUTER_URL"),
			},
		),
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	cfg, err := cmd.LoadConfig(command)
	if err != nil {
		return err
	}

	log.Setup(cfg.Log.Level, cfg.Log.Format)

	logger := log.WithModule("flowscribe-proxy")

	logger.InfoContext(ctx, "Initializing flowscribe proxy")

	tracer, shutdown := cmd.NewTracer(ctx, logger, cfg.Tracing.Enabled, "flowscribe-proxy")
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to shut down tracing", "error", err)
		}
	}()

	opts := []proxy.Option{
		proxy.WithAPIKey(cfg.Server.APIKey),
		proxy.WithTagFilter(cfg.Catalog.TagFilter),
		proxy.WithTracer(tracer),
	}

	if cfg.Server.OpenRouterURL != "" {
		opts = append(opts, proxy.WithOpenRouterURL(cfg.Server.OpenRouterURL))
	}

	if cfg.Server.APIKey == "" {
		logger.WarnContext(ctx, "No API key configured; the proxy accepts unauthenticated calls")
	}

	return proxy.New(logger, opts...).Start(ctx, cfg.Server.Addr)
}
