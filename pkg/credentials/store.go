// Package credentials persists the named secrets and validation flags the
// client needs on every outbound request. No other component reads the
// storage medium directly.
package credentials

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dukex/flowscribe/pkg/models"
)

// Persisted key names.
const (
	KeyN8nBaseURL      = "n8n_base_url"
	KeyN8nAPIKey       = "n8n_api_key"
	KeyOpenRouterKey   = "openrouter_key"
	KeyOpenRouterModel = "openrouter_model"
	KeyOpenRouterValid = "openrouter_valid"
	KeyN8nValid        = "n8n_valid"
)

// MaskGlyph marks a display-only redacted value.
const MaskGlyph = "•"

const maskedValue = "••••••••••••••••"

// Backend is a persistent key/value medium.
type Backend interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, name, value string) error
	Delete(ctx context.Context, name string) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Store is the only access path to persisted credentials. Backend failures
// are logged and reported as absent values.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

func NewStore(backend Backend, logger *slog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger.With("module", "credential_store"),
	}
}

func (s *Store) Put(ctx context.Context, name, value string) error {
	err := s.backend.Set(ctx, name, value)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save credential", "name", name, "error", err)

		return err
	}

	return nil
}

func (s *Store) Get(ctx context.Context, name string) (string, bool) {
	value, found, err := s.backend.Get(ctx, name)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to retrieve credential", "name", name, "error", err)

		return "", false
	}

	if !found || value == "" {
		return "", false
	}

	return value, true
}

func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.backend.Delete(ctx, name)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to clear credential", "name", name, "error", err)
	}

	return err
}

func (s *Store) PutFlag(ctx context.Context, name string, value bool) error {
	return s.Put(ctx, name, strconv.FormatBool(value))
}

// GetFlag returns false for absent, unreadable or non-"true" values.
func (s *Store) GetFlag(ctx context.Context, name string) bool {
	value, ok := s.Get(ctx, name)
	if !ok {
		return false
	}

	return value == "true"
}

// Mask returns the redacted display string for value.
func (s *Store) Mask(value string) string {
	return Mask(value)
}

// Credential returns a named value together with the validity flag of the
// pair it belongs to.
func (s *Store) Credential(ctx context.Context, name string) models.Credential {
	value, _ := s.Get(ctx, name)

	credential := models.Credential{Name: name, Value: value}
	if flag := validityFlag(name); flag != "" {
		credential.IsValid = s.GetFlag(ctx, flag)
	}

	return credential
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.backend.HealthCheck(ctx)
}

func (s *Store) Close(ctx context.Context) error {
	return s.backend.Close(ctx)
}

// Snapshot is a consistent read of every credential the client uses.
type Snapshot struct {
	N8nBaseURL string
	N8nAPIKey  string
	LLMKey     string
	LLMModel   string
	N8nValid   bool
	LLMValid   bool
}

// HasAutomation reports whether both automation-server values are stored.
func (s Snapshot) HasAutomation() bool {
	return s.N8nBaseURL != "" && s.N8nAPIKey != ""
}

// HasLLM reports whether an LLM key is stored.
func (s Snapshot) HasLLM() bool {
	return s.LLMKey != ""
}

func (s *Store) Snapshot(ctx context.Context) Snapshot {
	snapshot := Snapshot{
		N8nValid: s.GetFlag(ctx, KeyN8nValid),
		LLMValid: s.GetFlag(ctx, KeyOpenRouterValid),
	}

	snapshot.N8nBaseURL, _ = s.Get(ctx, KeyN8nBaseURL)
	snapshot.N8nAPIKey, _ = s.Get(ctx, KeyN8nAPIKey)
	snapshot.LLMKey, _ = s.Get(ctx, KeyOpenRouterKey)
	snapshot.LLMModel, _ = s.Get(ctx, KeyOpenRouterModel)

	return snapshot
}

// Mask returns a fixed-length opaque string that reveals neither the length
// nor the content of value.
func Mask(_ string) string {
	return maskedValue
}

// IsMasked reports whether value is (or contains) a redacted display string.
func IsMasked(value string) bool {
	return strings.Contains(value, MaskGlyph)
}

func validityFlag(name string) string {
	switch name {
	case KeyN8nBaseURL, KeyN8nAPIKey:
		return KeyN8nValid
	case KeyOpenRouterKey, KeyOpenRouterModel:
		return KeyOpenRouterValid
	default:
		return ""
	}
}
