// Package proxy provides the intermediary HTTP service that validates
// credentials and relays automation-server API calls for the client.
package proxy

import "github.com/goccy/go-json"

// ValidateConfigRequest represents the body of the validation endpoint.
// Only the pairs present are probed.
type ValidateConfigRequest struct {
	OpenRouterKey string `json:"openRouterKey,omitempty"`
	Model         string `json:"model,omitempty"`
	N8nBaseURL    string `json:"n8nBaseUrl,omitempty"    validate:"omitempty,url"`
	N8nAPIKey     string `json:"n8nApiKey,omitempty"`
}

// ValidationSide is the probe result of one credential pair.
type ValidationSide struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ValidateConfigResponse carries a side only when its inputs were sent.
type ValidateConfigResponse struct {
	OpenRouter *ValidationSide `json:"openRouter,omitempty"`
	N8n        *ValidationSide `json:"n8n,omitempty"`
}

// N8nAPIRequest represents the body of the relay endpoint.
type N8nAPIRequest struct {
	N8nBaseURL string `json:"n8nBaseUrl" validate:"required,url"`
	N8nAPIKey  string `json:"n8nApiKey"  validate:"required"`
	Endpoint   string `json:"endpoint"   validate:"required,startswith=/"`
	Method     string `json:"method"     validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
}

type relayResponse struct {
	Data json.RawMessage `json:"data"`
}
