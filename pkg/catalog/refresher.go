package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/flowscribe/pkg/models"
	"github.com/robfig/cron/v3"
)

// Lister lists catalog entries.
type Lister interface {
	ListDefinitions(ctx context.Context) ([]models.WorkflowSummary, error)
}

// Refresher keeps the latest catalog list, re-listing on a cron schedule and
// on demand. A failed re-list keeps the previous list.
type Refresher struct {
	lister   Lister
	schedule string
	onChange func([]models.WorkflowSummary)
	cron     *cron.Cron
	logger   *slog.Logger

	mu      sync.RWMutex
	latest  []models.WorkflowSummary
	lastErr error
}

// NewRefresher validates schedule (standard 5-field cron or a descriptor such
// as "@every 5m"). An empty schedule disables the periodic refresh.
func NewRefresher(lister Lister, schedule string, logger *slog.Logger) (*Refresher, error) {
	if lister == nil {
		return nil, errors.New("catalog refresher requires a lister")
	}

	if schedule != "" {
		if _, err := cron.ParseStandard(schedule); err != nil {
			return nil, fmt.Errorf("invalid catalog refresh schedule: %w", err)
		}
	}

	return &Refresher{
		lister:   lister,
		schedule: schedule,
		logger:   logger.With("module", "catalog_refresher", "schedule", schedule),
	}, nil
}

// OnChange registers a callback invoked after every successful refresh.
func (r *Refresher) OnChange(fn func([]models.WorkflowSummary)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onChange = fn
}

// Start runs an initial refresh and schedules the periodic one.
func (r *Refresher) Start(ctx context.Context) error {
	err := r.Refresh(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "Initial catalog refresh failed", "error", err)
	}

	if r.schedule == "" {
		return nil
	}

	r.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err = r.cron.AddFunc(r.schedule, func() {
		if err := r.Refresh(ctx); err != nil {
			r.logger.WarnContext(ctx, "Scheduled catalog refresh failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule catalog refresh: %w", err)
	}

	r.cron.Start()
	r.logger.InfoContext(ctx, "Catalog refresh scheduled")

	return nil
}

// Refresh re-lists the catalog and replaces the kept list wholesale.
func (r *Refresher) Refresh(ctx context.Context) error {
	summaries, err := r.lister.ListDefinitions(ctx)

	r.mu.Lock()
	r.lastErr = err

	if err != nil {
		r.mu.Unlock()

		return err
	}

	r.latest = summaries
	onChange := r.onChange
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "Catalog refreshed", "count", len(summaries))

	if onChange != nil {
		onChange(summaries)
	}

	return nil
}

// Latest returns a copy of the most recent successful list.
func (r *Refresher) Latest() []models.WorkflowSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]models.WorkflowSummary(nil), r.latest...)
}

// Err returns the error of the most recent refresh, if any.
func (r *Refresher) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastErr
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}

	<-r.cron.Stop().Done()
	r.logger.Info("Catalog refresh stopped")
}
