package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukex/flowscribe/pkg/models"
	"github.com/dukex/flowscribe/pkg/otelhelper"
	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultOpenRouterURL = "https://openrouter.ai/api/v1/chat/completions"

	n8nAPIKeyHeader = "X-N8N-API-KEY"
	maxProbeTokens  = 5
)

var ErrNotJSON = errors.New("n8n returned a non-JSON response")

// upstream performs the outbound calls of the intermediary.
type upstream struct {
	httpClient    *http.Client
	openRouterURL string
	tracer        trace.Tracer
	logger        *slog.Logger
}

type probeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type probeRequest struct {
	Model     string         `json:"model"`
	Messages  []probeMessage `json:"messages"`
	MaxTokens int            `json:"max_tokens"`
}

type openRouterError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// probeOpenRouter sends a minimal chat completion with key. Any 2xx reply
// validates the key.
func (u *upstream) probeOpenRouter(ctx context.Context, key, model string) ValidationSide {
	if model == "" {
		model = models.DefaultModel
	}

	ctx, span := otelhelper.StartSpan(ctx, u.tracer, "proxy.ProbeOpenRouter",
		attribute.String(otelhelper.UpstreamKey, "openrouter"),
		attribute.String("flowscribe.model", model),
	)
	defer span.End()

	payload, err := json.Marshal(probeRequest{
		Model:     model,
		Messages:  []probeMessage{{Role: "user", Content: "Connection test"}},
		MaxTokens: maxProbeTokens,
	})
	if err != nil {
		return ValidationSide{Error: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.openRouterURL, bytes.NewReader(payload))
	if err != nil {
		return ValidationSide{Error: err.Error()}
	}

	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		otelhelper.SetError(span, err)
		u.logger.ErrorContext(ctx, "OpenRouter probe failed", "error", err)

		return ValidationSide{Error: err.Error()}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, _ := io.ReadAll(resp.Body)

	u.logger.InfoContext(ctx, "OpenRouter probe completed", "model", model, "status", resp.StatusCode)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return ValidationSide{Valid: true}
	}

	var reply openRouterError
	if json.Unmarshal(body, &reply) == nil && reply.Error.Message != "" {
		return ValidationSide{Error: reply.Error.Message}
	}

	return ValidationSide{Error: fmt.Sprintf("HTTP %d", resp.StatusCode)}
}

// probeN8n lists workflows with apiKey. The credentials are valid when the
// reply is 2xx and carries a workflow list.
func (u *upstream) probeN8n(ctx context.Context, baseURL, apiKey string) ValidationSide {
	status, body, err := u.forward(ctx, N8nAPIRequest{
		N8nBaseURL: baseURL,
		N8nAPIKey:  apiKey,
		Endpoint:   workflowsRoute,
	})
	if err != nil {
		return ValidationSide{Error: err.Error()}
	}

	if status < 200 || status >= 300 {
		return ValidationSide{Error: fmt.Sprintf("Authentication failed: HTTP %d", status)}
	}

	if !isWorkflowList(body) {
		return ValidationSide{Error: "Invalid response format from n8n"}
	}

	return ValidationSide{Valid: true}
}

// forward relays one call to the automation server and returns its status
// and raw body.
func (u *upstream) forward(ctx context.Context, request N8nAPIRequest) (int, []byte, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}

	url := strings.TrimRight(request.N8nBaseURL, "/") + "/" + strings.TrimLeft(request.Endpoint, "/")

	ctx, span := otelhelper.StartSpan(ctx, u.tracer, "proxy.Forward",
		attribute.String(otelhelper.UpstreamKey, "n8n"),
		attribute.String("http.request.method", method),
		attribute.String("flowscribe.endpoint", request.Endpoint),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set(n8nAPIKeyHeader, request.N8nAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		otelhelper.SetError(span, err)
		u.logger.ErrorContext(ctx, "n8n request failed", "endpoint", request.Endpoint, "error", err)

		return 0, nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	u.logger.InfoContext(ctx, "n8n response",
		"endpoint", request.Endpoint,
		"method", method,
		"status", resp.StatusCode,
	)

	return resp.StatusCode, body, nil
}

func isWorkflowList(body []byte) bool {
	var list []json.RawMessage
	if json.Unmarshal(body, &list) == nil {
		return true
	}

	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}

	return json.Unmarshal(body, &envelope) == nil && envelope.Data != nil
}
