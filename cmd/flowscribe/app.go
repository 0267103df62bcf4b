package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dukex/flowscribe/pkg/catalog"
	"github.com/dukex/flowscribe/pkg/cmd"
	"github.com/dukex/flowscribe/pkg/config"
	"github.com/dukex/flowscribe/pkg/conversation"
	"github.com/dukex/flowscribe/pkg/credentials"
	"github.com/dukex/flowscribe/pkg/eventbus"
	"github.com/dukex/flowscribe/pkg/failures"
	"github.com/dukex/flowscribe/pkg/gateway"
	"github.com/dukex/flowscribe/pkg/log"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/dukex/flowscribe/pkg/otelhelper"
	"github.com/dukex/flowscribe/pkg/settings"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

var (
	errNoProxy      = errors.New("no intermediary service configured (set --proxy-url or proxy.url)")
	errNoGeneration = errors.New("no orchestration endpoint configured (set --generation-url or generation.url)")
)

const (
	panelExplain = models.PanelExplain
	panelDocs    = models.PanelDocs
)

// app holds the components one CLI invocation needs.
type app struct {
	config   *config.Config
	logger   *slog.Logger
	out      io.Writer
	store    *credentials.Store
	bus      eventbus.EventBus
	tracer   trace.Tracer
	shutdown otelhelper.ShutdownFunc
}

func newApp(ctx context.Context, command *cli.Command) (*app, error) {
	cfg, err := cmd.LoadConfig(command)
	if err != nil {
		return nil, err
	}

	log.Setup(cfg.Log.Level, cfg.Log.Format)

	logger := log.WithModule("flowscribe")

	store, err := cmd.NewCredentialStore(ctx, logger, cfg.StoreURL)
	if err != nil {
		return nil, err
	}

	bus, err := cmd.NewEventBus(cfg.EventBus, logger)
	if err != nil {
		_ = store.Close(ctx)

		return nil, err
	}

	tracer, shutdown := cmd.NewTracer(ctx, logger, cfg.Tracing.Enabled, "flowscribe")

	out := command.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	return &app{
		config:   cfg,
		logger:   logger,
		out:      out,
		store:    store,
		bus:      bus,
		tracer:   tracer,
		shutdown: shutdown,
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.bus.Close(); err != nil {
		a.logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
	}

	if err := a.store.Close(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to close credential store", "error", err)
	}

	if err := a.shutdown(ctx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to shut down tracing", "error", err)
	}
}

func (a *app) settings() (*settings.Service, error) {
	if a.config.Proxy.URL == "" {
		return nil, errNoProxy
	}

	validator := settings.NewValidator(a.config.Proxy.URL, a.config.Proxy.APIKey, a.store, a.logger,
		settings.WithTracer(a.tracer))

	return settings.NewService(validator, a.store, a.logger), nil
}

func (a *app) catalog() (*catalog.Client, error) {
	if a.config.Proxy.URL == "" {
		return nil, errNoProxy
	}

	return catalog.NewClient(a.config.Proxy.URL, a.config.Proxy.APIKey, a.store, a.logger,
		catalog.WithTracer(a.tracer)), nil
}

func (a *app) controller(panel models.Panel, options conversation.Options) (*conversation.Controller, error) {
	definitions, err := a.catalog()
	if err != nil {
		return nil, err
	}

	if a.config.Generation.URL == "" {
		return nil, errNoGeneration
	}

	generator := gateway.New(a.config.Generation.URL, a.logger,
		gateway.WithTimeout(a.config.Generation.Timeout),
		gateway.WithAppVersion(a.config.Generation.AppVersion),
		gateway.WithTracer(a.tracer),
	)

	return conversation.New(conversation.Config{
		Panel:          panel,
		KeyMode:        a.config.KeyMode(),
		ExecutionLimit: a.config.Catalog.ExecutionLimit,
		Options:        options,
	}, definitions, generator, a.store, a.bus, a.logger), nil
}

// withApp builds the app for one action and tears it down afterwards.
func withApp(action func(ctx context.Context, command *cli.Command, a *app) error) cli.ActionFunc {
	return func(ctx context.Context, command *cli.Command) error {
		a, err := newApp(ctx, command)
		if err != nil {
			return err
		}

		defer a.close(ctx)

		return action(ctx, command, a)
	}
}

// reportError prints the short summary of err and, when verbose, the raw
// diagnostic body behind it.
func reportError(w io.Writer, err error, verbose bool) {
	_, _ = fmt.Fprintln(w, "error:", failures.SummaryOf(err))

	if !verbose {
		return
	}

	if details := failures.DetailsOf(err); details != "" {
		_, _ = fmt.Fprintln(w, "details:")
		_, _ = fmt.Fprintln(w, details)
	}
}
