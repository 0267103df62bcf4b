// Package catalog lists and fetches workflow definitions from the automation
// server through the intermediary proxy endpoint.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/flowscribe/pkg/credentials"
	"github.com/dukex/flowscribe/pkg/failures"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/dukex/flowscribe/pkg/otelhelper"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	proxyPath      = "/n8n-api"
	workflowsRoute = "/api/v1/workflows"
	executionRoute = "/api/v1/executions"

	DefaultExecutionLimit = 50

	defaultTimeout = 60 * time.Second
)

// ErrNoData is wrapped by NotFound failures when the proxy reply carries no
// data payload.
var ErrNoData = errors.New("no data payload")

// proxyRequest is the body of the intermediary's proxy endpoint.
type proxyRequest struct {
	N8nBaseURL string `json:"n8nBaseUrl"`
	N8nAPIKey  string `json:"n8nApiKey"`
	Endpoint   string `json:"endpoint"`
	Method     string `json:"method,omitempty"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// Client talks to the automation server. Credentials are read from the store
// on every call, so a settings change applies to the next request.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	store      *credentials.Store
	tracer     trace.Tracer
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// NewClient builds a catalog client for the intermediary at proxyURL. apiKey
// is sent as a bearer token when non-empty.
func NewClient(proxyURL, apiKey string, store *credentials.Store, logger *slog.Logger, opts ...Option) *Client {
	client := &Client{
		endpoint:   strings.TrimRight(proxyURL, "/") + proxyPath,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      store,
		tracer:     otelhelper.Noop("catalog"),
		logger:     logger.With("module", "catalog"),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// ListDefinitions returns the eligible definitions in server order with
// duplicate ids dropped. Absent credentials yield an empty list.
func (c *Client) ListDefinitions(ctx context.Context) ([]models.WorkflowSummary, error) {
	snapshot := c.store.Snapshot(ctx)
	if !snapshot.HasAutomation() {
		c.logger.InfoContext(ctx, "Automation server not configured, returning empty catalog")

		return []models.WorkflowSummary{}, nil
	}

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "catalog.ListDefinitions")
	defer span.End()

	data, err := c.call(ctx, snapshot, "catalog.ListDefinitions", workflowsRoute)
	if errors.Is(err, ErrNoData) {
		return []models.WorkflowSummary{}, nil
	}

	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	var summaries []models.WorkflowSummary

	err = json.Unmarshal(data, &summaries)
	if err != nil {
		malformed := failures.Wrap(failures.KindMalformed, "catalog.ListDefinitions", "unexpected workflow list shape", err)
		otelhelper.SetError(span, malformed)

		return nil, malformed
	}

	return dedupe(summaries), nil
}

// FetchDefinition fetches the full structure of one definition. It never
// caches.
func (c *Client) FetchDefinition(ctx context.Context, id string) (*models.WorkflowDefinition, error) {
	const op = "catalog.FetchDefinition"

	snapshot := c.store.Snapshot(ctx)
	if !snapshot.HasAutomation() {
		return nil, failures.ConfigMissing(op, "automation server URL and API key are required")
	}

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, op, attribute.String(otelhelper.WorkflowIDKey, id))
	defer span.End()

	data, err := c.call(ctx, snapshot, op, workflowsRoute+"/"+url.PathEscape(id))
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	definition, err := decodeDefinition(op, data)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowNameKey, definition.Name))

	return definition, nil
}

// FetchExecutionHistory summarizes recent executions. It is best-effort: any
// failure is logged and reported as no history.
func (c *Client) FetchExecutionHistory(ctx context.Context, id string, limit int) *models.ExecutionHistorySummary {
	const op = "catalog.FetchExecutionHistory"

	snapshot := c.store.Snapshot(ctx)
	if !snapshot.HasAutomation() {
		return nil
	}

	if limit <= 0 {
		limit = DefaultExecutionLimit
	}

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, op, attribute.String(otelhelper.WorkflowIDKey, id))
	defer span.End()

	query := url.Values{}
	query.Set("workflowId", id)
	query.Set("limit", fmt.Sprint(limit))

	data, err := c.call(ctx, snapshot, op, executionRoute+"?"+query.Encode())
	if err != nil {
		otelhelper.SetError(span, err)
		c.logger.WarnContext(ctx, "Execution history unavailable, continuing without it",
			"workflow_id", id, "error", failures.SummaryOf(err))

		return nil
	}

	var executions []models.Execution

	err = json.Unmarshal(data, &executions)
	if err != nil {
		otelhelper.SetError(span, err)
		c.logger.WarnContext(ctx, "Unreadable execution history, continuing without it",
			"workflow_id", id, "error", err)

		return nil
	}

	return Summarize(executions)
}

func (c *Client) call(ctx context.Context, snapshot credentials.Snapshot, op, endpoint string) (json.RawMessage, error) {
	payload, err := json.Marshal(proxyRequest{
		N8nBaseURL: snapshot.N8nBaseURL,
		N8nAPIKey:  snapshot.N8nAPIKey,
		Endpoint:   endpoint,
		Method:     http.MethodGet,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode proxy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, failures.Network(op, err)
	}

	req.Header.Set("Content-Type", "application/json")

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.DebugContext(ctx, "Calling automation server", "endpoint", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Automation server request failed", "endpoint", endpoint, "error", err)

		return nil, failures.Network(op, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failures.Network(op, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &failures.Error{
			Kind:    failures.KindConfigInvalid,
			Op:      op,
			Message: "automation server rejected the credentials",
			Status:  resp.StatusCode,
			Details: string(body),
		}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &failures.Error{
			Kind:    failures.KindNotFound,
			Op:      op,
			Message: "automation server has no such resource",
			Status:  resp.StatusCode,
			Details: string(body),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, failures.Upstream(op, resp.StatusCode, string(body))
	}

	var reply envelope

	err = json.Unmarshal(body, &reply)
	if err != nil {
		return nil, &failures.Error{
			Kind:    failures.KindMalformed,
			Op:      op,
			Message: "unreadable proxy response",
			Details: string(body),
			Err:     err,
		}
	}

	if len(reply.Data) == 0 || string(reply.Data) == "null" {
		return nil, failures.Wrap(failures.KindNotFound, op, "no data returned", ErrNoData)
	}

	return reply.Data, nil
}

func dedupe(summaries []models.WorkflowSummary) []models.WorkflowSummary {
	seen := make(map[string]struct{}, len(summaries))
	result := make([]models.WorkflowSummary, 0, len(summaries))

	for _, summary := range summaries {
		if _, ok := seen[summary.ID]; ok {
			continue
		}

		seen[summary.ID] = struct{}{}
		result = append(result, summary)
	}

	return result
}
