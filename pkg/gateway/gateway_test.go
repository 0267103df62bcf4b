package gateway_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/flowscribe/pkg/failures"
	"github.com/dukex/flowscribe/pkg/gateway"
	"github.com/dukex/flowscribe/pkg/log"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedClock = func() time.Time {
	return time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
}

func sampleRequest() gateway.Request {
	input := "shorten section 2"

	return gateway.Request{
		Action:       "explain_chat",
		SourceTab:    models.PanelExplain,
		WorkflowID:   "wf-1",
		WorkflowName: "Invoice Sync",
		Model:        models.DefaultModel,
		Credentials: gateway.Credentials{
			N8nBaseURL: "https://n8n.example.com",
			N8nAPIKey:  "n8n-key",
		},
		PanelContext: map[string]any{"currentExplanation": "## Invoice Sync"},
		Chat: &gateway.Chat{
			Input:   &input,
			History: []models.ConversationMessage{models.AssistantMessage("Hi")},
		},
	}
}

func TestBuildBody(t *testing.T) {
	t.Parallel()

	meta := gateway.ClientMeta{Timestamp: fixedClock(), AppVersion: "1.2.3"}

	first, err := gateway.BuildBody(sampleRequest(), meta)
	require.NoError(t, err)

	second, err := gateway.BuildBody(sampleRequest(), meta)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.JSONEq(t, `{
		"action": "explain_chat",
		"sourceTab": "explain",
		"workflowId": "wf-1",
		"workflowName": "Invoice Sync",
		"llmModel": "anthropic/claude-sonnet-4.5",
		"openRouterApiKey": null,
		"n8nBaseUrl": "https://n8n.example.com",
		"n8nApiKey": "n8n-key",
		"panelContext": {"currentExplanation": "## Invoice Sync"},
		"chat": {"input": "shorten section 2", "history": [{"role": "assistant", "content": "Hi"}]},
		"clientMeta": {"timestamp": "2025-03-01T12:30:00.000Z", "appVersion": "1.2.3"}
	}`, string(first))
}

func TestBuildBody_WithoutChat(t *testing.T) {
	t.Parallel()

	key := "sk-or-key"
	req := gateway.Request{
		Action:      "explain_workflow",
		SourceTab:   models.PanelExplain,
		Credentials: gateway.Credentials{LLMKey: &key},
	}

	body, err := gateway.BuildBody(req, gateway.ClientMeta{Timestamp: fixedClock()})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.NotContains(t, decoded, "chat")
	assert.Equal(t, "sk-or-key", decoded["openRouterApiKey"])
	assert.Equal(t, map[string]any{}, decoded["panelContext"])
}

func TestBuildBody_EmptyHistoryIsArray(t *testing.T) {
	t.Parallel()

	req := sampleRequest()
	req.Chat.History = nil

	body, err := gateway.BuildBody(req, gateway.ClientMeta{Timestamp: fixedClock()})
	require.NoError(t, err)
	assert.Contains(t, string(body), `"history":[]`)
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	type capture struct {
		requestID string
		body      map[string]any
	}

	captured := make(chan capture, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured <- capture{requestID: r.Header.Get("X-Request-Id"), body: body}

		_, _ = io.WriteString(w, `[{"output":"## Invoice Sync\n..."}]`)
	}))
	defer server.Close()

	gw := gateway.New(server.URL, log.Discard(), gateway.WithClock(fixedClock), gateway.WithAppVersion("2.0.0"))

	result, err := gw.Generate(context.Background(), sampleRequest())
	require.NoError(t, err)

	assert.Equal(t, gateway.Content("## Invoice Sync\n..."), result)

	received := <-captured
	assert.NotEmpty(t, received.requestID)
	assert.Equal(t, "explain_chat", received.body["action"])
	assert.Equal(t, map[string]any{"timestamp": "2025-03-01T12:30:00.000Z", "appVersion": "2.0.0"}, received.body["clientMeta"])
}

func TestGenerate_PlainTextIsContent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "Plain generated text")
	}))
	defer server.Close()

	result, err := gateway.New(server.URL, log.Discard()).Generate(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, gateway.Content("Plain generated text"), result)
}

func TestGenerate_UpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"Workflow could not be started"}`)
	}))
	defer server.Close()

	_, err := gateway.New(server.URL, log.Discard()).Generate(context.Background(), sampleRequest())
	require.Error(t, err)

	assert.True(t, failures.IsUpstream(err))
	assert.Equal(t, `{"message":"Workflow could not be started"}`, failures.DetailsOf(err))
	assert.Equal(t, "upstream service returned an error (status 500)", failures.SummaryOf(err))
}

func TestGenerate_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	gw := gateway.New(server.URL, log.Discard(), gateway.WithTimeout(50*time.Millisecond))

	_, err := gw.Generate(context.Background(), sampleRequest())
	require.Error(t, err)

	assert.True(t, failures.IsNetwork(err))
	assert.True(t, failures.IsTimeout(err))
	assert.False(t, failures.IsCanceled(err))
}

func TestGenerate_Canceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := gateway.New(server.URL, log.Discard()).Generate(ctx, sampleRequest())
	require.Error(t, err)

	assert.True(t, failures.IsNetwork(err))
	assert.True(t, failures.IsCanceled(err))
	assert.False(t, failures.IsTimeout(err))
}

func TestGenerate_NetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := gateway.New(url, log.Discard()).Generate(context.Background(), sampleRequest())
	require.Error(t, err)

	assert.True(t, failures.IsNetwork(err))
	assert.False(t, failures.IsTimeout(err))
}

func TestClampTimeout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, gateway.MaxTimeout, gateway.ClampTimeout(0))
	assert.Equal(t, gateway.MaxTimeout, gateway.ClampTimeout(-time.Second))
	assert.Equal(t, gateway.MaxTimeout, gateway.ClampTimeout(time.Hour))
	assert.Equal(t, 30*time.Second, gateway.ClampTimeout(30*time.Second))
}
