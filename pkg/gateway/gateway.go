package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/flowscribe/pkg/failures"
	"github.com/dukex/flowscribe/pkg/otelhelper"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// MaxTimeout is the ceiling for one generation call.
	MaxTimeout = 300 * time.Second

	DefaultAppVersion = "1.0.0"

	op = "gateway.Generate"

	previewLength = 300
)

// Generator produces a normalized result for one request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

// Gateway is the HTTP client of the orchestration endpoint. It sends exactly
// one attempt per call and has no effect on caller state.
type Gateway struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	appVersion string
	now        func() time.Time
	tracer     trace.Tracer
	logger     *slog.Logger
}

type Option func(*Gateway)

// WithHTTPClient replaces the transport. Its own Timeout should be zero or
// longer than the gateway timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Gateway) {
		g.httpClient = client
	}
}

// WithTimeout sets the bounded wait, clamped to MaxTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = ClampTimeout(timeout)
	}
}

func WithAppVersion(version string) Option {
	return func(g *Gateway) {
		if version != "" {
			g.appVersion = version
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		g.now = now
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

func New(url string, logger *slog.Logger, opts ...Option) *Gateway {
	gateway := &Gateway{
		url:        url,
		httpClient: &http.Client{},
		timeout:    MaxTimeout,
		appVersion: DefaultAppVersion,
		now:        time.Now,
		tracer:     otelhelper.Noop("gateway"),
		logger:     logger.With("module", "generation_gateway"),
	}

	for _, opt := range opts {
		opt(gateway)
	}

	return gateway
}

// ClampTimeout maps non-positive values and values above the ceiling to
// MaxTimeout.
func ClampTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 || timeout > MaxTimeout {
		return MaxTimeout
	}

	return timeout
}

// Generate posts req and normalizes the reply. Transport failures, timeouts
// and non-2xx replies are returned as *failures.Error.
func (g *Gateway) Generate(ctx context.Context, req Request) (Result, error) {
	requestID := uuid.NewString()

	ctx, span := otelhelper.StartSpan(ctx, g.tracer, op,
		attribute.String(otelhelper.ActionKey, req.Action),
		attribute.String(otelhelper.PanelKey, string(req.SourceTab)),
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.RequestIDKey, requestID),
	)
	defer span.End()

	logger := g.logger.With(
		"action", req.Action,
		"source_tab", req.SourceTab,
		"workflow_id", req.WorkflowID,
		"request_id", requestID,
	)

	payload, err := BuildBody(req, ClientMeta{Timestamp: g.now(), AppVersion: g.appVersion})
	if err != nil {
		failure := failures.Wrap(failures.KindMalformed, op, "failed to encode request", err)
		otelhelper.SetError(span, failure)

		return Result{}, failure
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(payload))
	if err != nil {
		failure := failures.Network(op, err)
		otelhelper.SetError(span, failure)

		return Result{}, failure
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Request-Id", requestID)

	logger.InfoContext(ctx, "Calling generation endpoint",
		"has_llm_key", req.Credentials.LLMKey != nil,
		"has_chat", req.Chat != nil,
	)

	started := time.Now()

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		failure := transportFailure(ctx, err)
		otelhelper.SetError(span, failure)
		logger.ErrorContext(ctx, "Generation request failed", "error", err, "elapsed", time.Since(started))

		return Result{}, failure
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		failure := transportFailure(ctx, err)
		otelhelper.SetError(span, failure)
		logger.ErrorContext(ctx, "Reading generation reply failed", "error", err)

		return Result{}, failure
	}

	logger.DebugContext(ctx, "Generation endpoint replied",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"preview", preview(body),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		failure := failures.Upstream(op, resp.StatusCode, string(body))
		otelhelper.SetError(span, failure)
		logger.ErrorContext(ctx, "Generation endpoint returned an error", "status", resp.StatusCode)

		return Result{}, failure
	}

	result := Normalize(body)
	span.SetAttributes(attribute.String(otelhelper.ResponseKindKey, result.Kind.String()))

	if result.Kind == KindRaw {
		logger.WarnContext(ctx, "Unexpected generation reply format", "preview", preview(body))
	}

	logger.InfoContext(ctx, "Generation completed",
		"kind", result.Kind.String(),
		"response_type", result.ResponseType,
		"elapsed", time.Since(started),
	)

	return result, nil
}

func transportFailure(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return failures.Canceled(op, err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return failures.Timeout(op, err)
	default:
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return failures.Timeout(op, err)
		}

		return failures.Network(op, err)
	}
}

func preview(body []byte) string {
	if len(body) > previewLength {
		return string(body[:previewLength])
	}

	return string(body)
}
