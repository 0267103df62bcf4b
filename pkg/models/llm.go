package models

import "fmt"

// LLMModel is a model identifier offered to the user.
type LLMModel struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Provider string `json:"provider"`
}

const DefaultModel = "anthropic/claude-sonnet-4.5"

var KnownModels = []LLMModel{
	{ID: "openai/gpt-5", Label: "GPT-5", Provider: "OpenAI"},
	{ID: "openai/gpt-5.1", Label: "GPT-5.1", Provider: "OpenAI"},
	{ID: "openai/gpt-5-chat", Label: "GPT-5 Chat", Provider: "OpenAI"},
	{ID: "openai/gpt-5-mini", Label: "GPT-5 Mini", Provider: "OpenAI"},
	{ID: "openai/gpt-5.1-codex", Label: "GPT-5.1 Codex", Provider: "OpenAI"},
	{ID: "openai/gpt-5.1-codex-mini", Label: "GPT-5.1 Codex Mini", Provider: "OpenAI"},
	{ID: "openai/gpt-4.1", Label: "GPT-4.1", Provider: "OpenAI"},
	{ID: "openai/gpt-4o", Label: "GPT-4o", Provider: "OpenAI"},
	{ID: "anthropic/claude-opus-4.5", Label: "Claude Opus 4.5", Provider: "Anthropic"},
	{ID: "anthropic/claude-sonnet-4.5", Label: "Claude Sonnet 4.5", Provider: "Anthropic"},
	{ID: "anthropic/claude-haiku-4.5", Label: "Claude Haiku 4.5", Provider: "Anthropic"},
	{ID: "anthropic/claude-opus-4.1", Label: "Claude Opus 4.1", Provider: "Anthropic"},
	{ID: "anthropic/claude-opus-4", Label: "Claude Opus 4", Provider: "Anthropic"},
	{ID: "anthropic/claude-sonnet-4", Label: "Claude Sonnet 4", Provider: "Anthropic"},
	{ID: "anthropic/claude-3.7-sonnet", Label: "Claude 3.7 Sonnet", Provider: "Anthropic"},
	{ID: "anthropic/claude-3.7-sonnet:thinking", Label: "Claude 3.7 Sonnet (Thinking)", Provider: "Anthropic"},
	{ID: "google/gemini-3-pro-preview", Label: "Gemini 3 Pro Preview", Provider: "Google"},
	{ID: "google/gemini-2.5-pro", Label: "Gemini 2.5 Pro", Provider: "Google"},
	{ID: "google/gemini-2.5-flash", Label: "Gemini 2.5 Flash", Provider: "Google"},
	{ID: "google/gemini-2.5-flash-lite", Label: "Gemini 2.5 Flash Lite", Provider: "Google"},
}

// FindModel looks up a known model by id.
func FindModel(id string) (LLMModel, bool) {
	for _, model := range KnownModels {
		if model.ID == id {
			return model, true
		}
	}

	return LLMModel{}, false
}

// LLMKeyMode selects who owns the LLM provider key.
type LLMKeyMode string

const (
	// LLMKeyOrchestrator: the orchestration endpoint owns the LLM key; the
	// client only supplies automation-server credentials.
	LLMKeyOrchestrator LLMKeyMode = "orchestrator"
	// LLMKeyClient: the client supplies its own validated LLM key.
	LLMKeyClient LLMKeyMode = "client"
)

func ParseLLMKeyMode(value string) (LLMKeyMode, error) {
	switch LLMKeyMode(value) {
	case "", LLMKeyOrchestrator:
		return LLMKeyOrchestrator, nil
	case LLMKeyClient:
		return LLMKeyClient, nil
	default:
		return "", fmt.Errorf("unknown llm key mode %q", value)
	}
}
