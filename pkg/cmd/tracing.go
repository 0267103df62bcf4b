package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/flowscribe/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns an exporting tracer when enabled, otherwise a no-op one.
// The returned shutdown function is never nil.
// nolint:ireturn
func NewTracer(ctx context.Context, logger *slog.Logger, enabled bool, service string) (trace.Tracer, otelhelper.ShutdownFunc) {
	noop := func(context.Context) error { return nil }

	if !enabled {
		return otelhelper.Noop(service), noop
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, service)
	if err != nil {
		logger.WarnContext(ctx, "Failed to initialize tracing, continuing without it", "error", err)

		return otelhelper.Noop(service), noop
	}

	return tracer, shutdown
}
