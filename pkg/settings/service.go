package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowscribe/pkg/credentials"
)

// View is what the settings screen renders: stored values masked, flags as-is.
type View struct {
	N8nBaseURL Field
	N8nAPIKey  Field
	LLMKey     Field
	LLMModel   Field
	N8nValid   bool
	LLMValid   bool
}

// Service validates candidates and persists only the pairs that passed.
type Service struct {
	validator *Validator
	store     *credentials.Store
	logger    *slog.Logger
}

func NewService(validator *Validator, store *credentials.Store, logger *slog.Logger) *Service {
	return &Service{
		validator: validator,
		store:     store,
		logger:    logger.With("module", "settings"),
	}
}

// Load returns the settings view. The base URL is not a secret and is shown
// in clear; keys are masked.
func (s *Service) Load(ctx context.Context) View {
	snapshot := s.store.Snapshot(ctx)

	view := View{
		N8nAPIKey: Viewing(snapshot.N8nAPIKey),
		LLMKey:    Viewing(snapshot.LLMKey),
		N8nValid:  snapshot.N8nValid,
		LLMValid:  snapshot.LLMValid,
	}

	if snapshot.N8nBaseURL != "" {
		view.N8nBaseURL = Field{Value: snapshot.N8nBaseURL}
	}

	if snapshot.LLMModel != "" {
		view.LLMModel = Field{Value: snapshot.LLMModel}
	}

	return view
}

// Save validates the candidates and writes each valid pair together with its
// flag. Rejected or unreachable pairs leave storage untouched. The returned
// error reports storage failures only; validation results live in the Report.
func (s *Service) Save(ctx context.Context, candidates Candidates) (Report, error) {
	report := s.validator.Validate(ctx, candidates)

	var errs []error

	if report.Automation.Valid() {
		err := s.persist(ctx, credentials.KeyN8nValid, []credential{
			{credentials.KeyN8nBaseURL, report.automation.baseURL},
			{credentials.KeyN8nAPIKey, report.automation.apiKey},
		})
		if err == nil {
			s.logger.InfoContext(ctx, "Automation server credentials saved")
		}

		errs = append(errs, err)
	}

	if report.LLM.Valid() {
		err := s.persist(ctx, credentials.KeyOpenRouterValid, []credential{
			{credentials.KeyOpenRouterKey, report.llm.key},
			{credentials.KeyOpenRouterModel, report.llm.model},
		})
		if err == nil {
			s.logger.InfoContext(ctx, "LLM credentials saved", "model", report.llm.model)
		}

		errs = append(errs, err)
	}

	return report, errors.Join(errs...)
}

type credential struct {
	name  string
	value string
}

// persist clears flag, writes values in order and raises flag only when every
// value was stored. A failed write leaves the pair flagged invalid.
func (s *Service) persist(ctx context.Context, flag string, values []credential) error {
	if err := s.store.PutFlag(ctx, flag, false); err != nil {
		return fmt.Errorf("failed to clear %s: %w", flag, err)
	}

	for _, c := range values {
		if err := s.store.Put(ctx, c.name, c.value); err != nil {
			return fmt.Errorf("failed to store %s: %w", c.name, err)
		}
	}

	return s.store.PutFlag(ctx, flag, true)
}

// SelectModel stores a model for the already-validated key without another
// round trip. Unknown identifiers are accepted as-is.
func (s *Service) SelectModel(ctx context.Context, model string) error {
	return s.store.Put(ctx, credentials.KeyOpenRouterModel, model)
}
