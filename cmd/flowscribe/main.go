package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/flowscribe/pkg/cmd"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	if err := cmd.LoadEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	command := newRootCommand()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		reportError(os.Stderr, err, command.Bool("verbose"))
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "flowscribe",
		Usage:                 "Explain and document n8n workflows with an LLM",
		Version:               version,
		EnableShellCompletion: true,
		Flags:                 append(cmd.CommonFlags(), clientFlags()...),
		Commands: []*cli.Command{
			settingsCommand(),
			workflowsCommand(),
			generateCommand(panelExplain),
			generateCommand(panelDocs),
			sessionCommand(),
			modelsCommand(),
		},
	}
}

func clientFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "proxy-url",
			Usage:   "Base URL of the intermediary service",
			Sources: cli.EnvVars("FLOWSCRIBE_PROXY_URL"),
		},
		&cli.StringFlag{
			Name:    "proxy-api-key",
			Usage:   "Bearer token for the intermediary service",
			Sources: cli.EnvVars("FLOWSCRIBE_PROXY_API_KEY"),
		},
		&cli.StringFlag{
			Name:    "generation-url",
			Usage:   "URL of the orchestration endpoint",
			Sources: cli.EnvVars("FLOWSCRIBE_GENERATION_URL"),
		},
		&cli.DurationFlag{
			Name:    "generation-timeout",
			Usage:   "Generation request timeout (at most 5m)",
			Sources: cli.EnvVars("FLOWSCRIBE_GENERATION_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "llm-key-mode",
			Usage:   "Who supplies the LLM key (orchestrator, client)",
			Sources: cli.EnvVars("FLOWSCRIBE_LLM_KEY_MODE"),
		},
		&cli.IntFlag{
			Name:    "execution-limit",
			Usage:   "Executions to summarize in Executions Summary mode",
			Sources: cli.EnvVars("FLOWSCRIBE_EXECUTION_LIMIT"),
		},
		&cli.StringFlag{
			Name:    "refresh-schedule",
			Usage:   "Cron schedule for re-listing workflows while watching",
			Sources: cli.EnvVars("FLOWSCRIBE_REFRESH_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Where session events go (gochannel, kafka)",
			Sources: cli.EnvVars("FLOWSCRIBE_EVENT_BUS"),
		},
		&cli.StringSliceFlag{
			Name:    "kafka-brokers",
			Usage:   "Kafka brokers (host:port) for the kafka event bus",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Print diagnostic details of failures",
		},
	}
}
