// Package cmd provides common initialization functions for the flowscribe
// command-line applications.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/dukex/flowscribe/pkg/config"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// LoadEnv reads .env files into the environment before flags are parsed.
// Missing files are ignored; variables already set win.
func LoadEnv(files ...string) error {
	for _, file := range files {
		err := godotenv.Load(file)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// CommonFlags are accepted by every flowscribe binary.
func CommonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			Sources: cli.EnvVars("FLOWSCRIBE_CONFIG"),
		},
		&cli.StringFlag{
			Name:    "store-url",
			Usage:   "Credential store location (path, memory://, redis://, postgres://)",
			Sources: cli.EnvVars("FLOWSCRIBE_STORE_URL"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
			Sources: cli.EnvVars("FLOWSCRIBE_TRACING"),
		},
	}
}

type override struct {
	flag  string
	apply func(*config.Config, *cli.Command)
}

var overrides = []override{
	{"store-url", func(c *config.Config, cmd *cli.Command) { c.StoreURL = cmd.String("store-url") }},
	{"log-level", func(c *config.Config, cmd *cli.Command) { c.Log.Level = cmd.String("log-level") }},
	{"log-format", func(c *config.Config, cmd *cli.Command) { c.Log.Format = cmd.String("log-format") }},
	{"tracing", func(c *config.Config, cmd *cli.Command) { c.Tracing.Enabled = cmd.Bool("tracing") }},
	{"proxy-url", func(c *config.Config, cmd *cli.Command) { c.Proxy.URL = cmd.String("proxy-url") }},
	{"proxy-api-key", func(c *config.Config, cmd *cli.Command) { c.Proxy.APIKey = cmd.String("proxy-api-key") }},
	{"generation-url", func(c *config.Config, cmd *cli.Command) { c.Generation.URL = cmd.String("generation-url") }},
	{"generation-timeout", func(c *config.Config, cmd *cli.Command) {
		c.Generation.Timeout = cmd.Duration("generation-timeout")
	}},
	{"llm-key-mode", func(c *config.Config, cmd *cli.Command) { c.LLMKeyMode = cmd.String("llm-key-mode") }},
	{"tag-filter", func(c *config.Config, cmd *cli.Command) { c.Catalog.TagFilter = cmd.String("tag-filter") }},
	{"execution-limit", func(c *config.Config, cmd *cli.Command) {
		c.Catalog.ExecutionLimit = cmd.Int("execution-limit")
	}},
	{"refresh-schedule", func(c *config.Config, cmd *cli.Command) {
		c.Catalog.RefreshSchedule = cmd.String("refresh-schedule")
	}},
	{"event-bus", func(c *config.Config, cmd *cli.Command) { c.EventBus.Provider = cmd.String("event-bus") }},
	{"kafka-brokers", func(c *config.Config, cmd *cli.Command) { c.EventBus.Brokers = cmd.StringSlice("kafka-brokers") }},
	{"addr", func(c *config.Config, cmd *cli.Command) { c.Server.Addr = cmd.String("addr") }},
	{"api-key", func(c *config.Config, cmd *cli.Command) { c.Server.APIKey = cmd.String("api-key") }},
	{"openrouter-url", func(c *config.Config, cmd *cli.Command) { c.Server.OpenRouterURL = cmd.String("openrouter-url") }},
}

// LoadConfig loads the file named by --config and applies every flag the
// user set, flags taking precedence over the file.
func LoadConfig(command *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(command.String("config"))
	if err != nil {
		return nil, err
	}

	for _, o := range overrides {
		if command.IsSet(o.flag) {
			o.apply(cfg, command)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
