package settings

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
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
	defaultTimeout = 30 * time.Second
	validatePath   = "/validate-config"
)

// Status is the outcome of one credential pair.
type Status string

const (
	StatusNotAttempted Status = "not_attempted"
	StatusIncomplete   Status = "incomplete"
	StatusValid        Status = "valid"
	StatusRejected     Status = "rejected"
	StatusNetworkError Status = "network_error"
	StatusUpstream     Status = "upstream_error"
)

// Outcome reports what happened to one credential pair. Only StatusValid
// allows the candidate to be persisted.
type Outcome struct {
	Status Status
	Error  string
}

func (o Outcome) Attempted() bool {
	return o.Status != StatusNotAttempted && o.Status != StatusIncomplete
}

func (o Outcome) Valid() bool {
	return o.Status == StatusValid
}

// Kind maps the outcome onto the shared failure taxonomy.
func (o Outcome) Kind() failures.Kind {
	switch o.Status {
	case StatusIncomplete:
		return failures.KindConfigMissing
	case StatusRejected:
		return failures.KindConfigInvalid
	case StatusNetworkError:
		return failures.KindNetwork
	case StatusUpstream:
		return failures.KindUpstream
	default:
		return ""
	}
}

// Report carries one outcome per credential pair.
type Report struct {
	Automation Outcome
	LLM        Outcome

	// resolved candidate values, kept for Save.
	automation automationPair
	llm        llmPair
}

// Attempted reports whether any request was sent.
func (r Report) Attempted() bool {
	return r.Automation.Attempted() || r.LLM.Attempted()
}

type automationPair struct {
	baseURL string
	apiKey  string
}

type llmPair struct {
	key   string
	model string
}

// validationRequest is the body of the validation endpoint; absent pairs
// are omitted.
type validationRequest struct {
	OpenRouterKey string `json:"openRouterKey,omitempty"`
	Model         string `json:"model,omitempty"`
	N8nBaseURL    string `json:"n8nBaseUrl,omitempty"`
	N8nAPIKey     string `json:"n8nApiKey,omitempty"`
}

type sideResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error"`
}

type validationResponse struct {
	OpenRouter *sideResult `json:"openRouter,omitempty"`
	N8n        *sideResult `json:"n8n,omitempty"`
}

// Validator round-trips candidates through the validation endpoint.
type Validator struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	store      *credentials.Store
	tracer     trace.Tracer
	logger     *slog.Logger
}

type Option func(*Validator)

func WithHTTPClient(client *http.Client) Option {
	return func(v *Validator) {
		v.httpClient = client
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(v *Validator) {
		v.tracer = tracer
	}
}

// NewValidator builds a validator for the intermediary at baseURL. apiKey is
// sent as a bearer token when non-empty.
func NewValidator(baseURL, apiKey string, store *credentials.Store, logger *slog.Logger, opts ...Option) *Validator {
	validator := &Validator{
		endpoint:   strings.TrimRight(baseURL, "/") + validatePath,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		store:      store,
		tracer:     otelhelper.Noop("settings"),
		logger:     logger.With("module", "config_validator"),
	}

	for _, opt := range opts {
		opt(validator)
	}

	return validator
}

// Validate resolves which pairs the user changed and validates them in one
// combined request. Masked or unedited values are never sent; the unchanged
// half of an edited pair is read from storage.
func (v *Validator) Validate(ctx context.Context, candidates Candidates) Report {
	report := Report{
		Automation: Outcome{Status: StatusNotAttempted},
		LLM:        Outcome{Status: StatusNotAttempted},
	}

	var body validationRequest

	if candidates.N8nBaseURL.Sendable() || candidates.N8nAPIKey.Sendable() {
		pair := automationPair{
			baseURL: v.resolve(ctx, candidates.N8nBaseURL, credentials.KeyN8nBaseURL),
			apiKey:  v.resolve(ctx, candidates.N8nAPIKey, credentials.KeyN8nAPIKey),
		}

		if pair.baseURL == "" || pair.apiKey == "" {
			report.Automation = Outcome{Status: StatusIncomplete, Error: "n8n base URL and API key are both required"}
		} else {
			report.automation = pair
			body.N8nBaseURL = pair.baseURL
			body.N8nAPIKey = pair.apiKey
		}
	}

	if candidates.LLMKey.Sendable() || candidates.LLMModel.Sendable() {
		pair := llmPair{
			key:   v.resolve(ctx, candidates.LLMKey, credentials.KeyOpenRouterKey),
			model: v.resolve(ctx, candidates.LLMModel, credentials.KeyOpenRouterModel),
		}

		if pair.model == "" {
			pair.model = models.DefaultModel
		}

		if pair.key == "" {
			report.LLM = Outcome{Status: StatusIncomplete, Error: "an OpenRouter API key is required"}
		} else {
			report.llm = pair
			body.OpenRouterKey = pair.key
			body.Model = pair.model
		}
	}

	if body == (validationRequest{}) {
		return report
	}

	ctx, span := otelhelper.StartSpan(ctx, v.tracer, "settings.Validate",
		attribute.Bool("flowscribe.validate.n8n", body.N8nAPIKey != ""),
		attribute.Bool("flowscribe.validate.llm", body.OpenRouterKey != ""),
	)
	defer span.End()

	response, err := v.send(ctx, body)
	if err != nil {
		otelhelper.SetError(span, err)

		outcome := Outcome{Status: StatusNetworkError, Error: "network error during validation"}
		if failures.IsUpstream(err) || failures.IsMalformed(err) {
			outcome = Outcome{Status: StatusUpstream, Error: failures.SummaryOf(err)}
		}

		if body.N8nAPIKey != "" {
			report.Automation = outcome
		}

		if body.OpenRouterKey != "" {
			report.LLM = outcome
		}

		return report
	}

	if body.N8nAPIKey != "" {
		report.Automation = sideOutcome(response.N8n)
	}

	if body.OpenRouterKey != "" {
		report.LLM = sideOutcome(response.OpenRouter)
	}

	v.logger.InfoContext(ctx, "Validation completed",
		"n8n_status", report.Automation.Status,
		"llm_status", report.LLM.Status,
	)

	return report
}

func (v *Validator) resolve(ctx context.Context, field Field, key string) string {
	if field.Sendable() {
		return field.value()
	}

	stored, _ := v.store.Get(ctx, key)

	return stored
}

func (v *Validator) send(ctx context.Context, body validationRequest) (*validationResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode validation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, failures.Network("settings.Validate", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if v.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.apiKey)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		v.logger.ErrorContext(ctx, "Validation request failed", "error", err)

		return nil, failures.Network("settings.Validate", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failures.Network("settings.Validate", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		v.logger.ErrorContext(ctx, "Validation service error", "status", resp.StatusCode)

		return nil, failures.Upstream("settings.Validate", resp.StatusCode, string(data))
	}

	var response validationResponse

	err = json.Unmarshal(data, &response)
	if err != nil {
		return nil, failures.Wrap(failures.KindMalformed, "settings.Validate", "unreadable validation response", err)
	}

	return &response, nil
}

func sideOutcome(side *sideResult) Outcome {
	switch {
	case side == nil:
		return Outcome{Status: StatusRejected, Error: "Validation failed"}
	case side.Valid:
		return Outcome{Status: StatusValid}
	case side.Error == "":
		return Outcome{Status: StatusRejected, Error: "Validation failed"}
	default:
		return Outcome{Status: StatusRejected, Error: side.Error}
	}
}
