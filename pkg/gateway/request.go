// Package gateway sends generation and chat-edit requests to the
// orchestration endpoint and normalizes its replies.
package gateway

import (
	"time"

	"github.com/dukex/flowscribe/pkg/models"
	"github.com/goccy/go-json"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Credentials are forwarded to the orchestration endpoint. A nil LLMKey is
// sent as JSON null, meaning the endpoint owns the LLM key.
type Credentials struct {
	N8nBaseURL string
	N8nAPIKey  string
	LLMKey     *string
}

// Chat carries the latest user input together with the prior transcript.
type Chat struct {
	Input   *string
	History []models.ConversationMessage
}

// Request is the single outbound contract of the gateway.
type Request struct {
	Action       string
	SourceTab    models.Panel
	WorkflowID   string
	WorkflowName string
	Model        string
	Credentials  Credentials
	PanelContext map[string]any
	Chat         *Chat
}

// ClientMeta describes the calling client.
type ClientMeta struct {
	Timestamp  time.Time
	AppVersion string
}

type chatBody struct {
	Input   *string                      `json:"input"`
	History []models.ConversationMessage `json:"history"`
}

type clientMetaBody struct {
	Timestamp  string `json:"timestamp"`
	AppVersion string `json:"appVersion"`
}

type requestBody struct {
	Action           string         `json:"action"`
	SourceTab        models.Panel   `json:"sourceTab"`
	WorkflowID       string         `json:"workflowId"`
	WorkflowName     string         `json:"workflowName"`
	LLMModel         string         `json:"llmModel"`
	OpenRouterAPIKey *string        `json:"openRouterApiKey"`
	N8nBaseURL       string         `json:"n8nBaseUrl"`
	N8nAPIKey        string         `json:"n8nApiKey"`
	PanelContext     map[string]any `json:"panelContext"`
	Chat             *chatBody      `json:"chat,omitempty"`
	ClientMeta       clientMetaBody `json:"clientMeta"`
}

// BuildBody encodes req. The output depends only on its inputs.
func BuildBody(req Request, meta ClientMeta) ([]byte, error) {
	panelContext := req.PanelContext
	if panelContext == nil {
		panelContext = map[string]any{}
	}

	body := requestBody{
		Action:           req.Action,
		SourceTab:        req.SourceTab,
		WorkflowID:       req.WorkflowID,
		WorkflowName:     req.WorkflowName,
		LLMModel:         req.Model,
		OpenRouterAPIKey: req.Credentials.LLMKey,
		N8nBaseURL:       req.Credentials.N8nBaseURL,
		N8nAPIKey:        req.Credentials.N8nAPIKey,
		PanelContext:     panelContext,
		ClientMeta: clientMetaBody{
			Timestamp:  meta.Timestamp.UTC().Format(timestampLayout),
			AppVersion: meta.AppVersion,
		},
	}

	if req.Chat != nil {
		history := req.Chat.History
		if history == nil {
			history = []models.ConversationMessage{}
		}

		body.Chat = &chatBody{Input: req.Chat.Input, History: history}
	}

	return json.Marshal(body)
}
