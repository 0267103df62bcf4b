package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/flowscribe/pkg/credentials"
)

// NewCredentialStore opens the store at storeURL and checks it is reachable.
func NewCredentialStore(ctx context.Context, logger *slog.Logger, storeURL string) (*credentials.Store, error) {
	store, err := credentials.Open(ctx, logger, storeURL)
	if err != nil {
		return nil, err
	}

	if err := store.HealthCheck(ctx); err != nil {
		_ = store.Close(ctx)

		return nil, err
	}

	return store, nil
}
