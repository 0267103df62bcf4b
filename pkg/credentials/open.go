package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowscribe/pkg/credentials/file"
	"github.com/dukex/flowscribe/pkg/credentials/memory"
	"github.com/dukex/flowscribe/pkg/credentials/postgresql"
	"github.com/dukex/flowscribe/pkg/credentials/redis"
)

var supportedProviders = []string{"file", "memory", "redis", "rediss", "postgres", "postgresql"}

// OpenBackend selects a backend from the scheme of storeURL. A URL without a
// known scheme is treated as a file-system path.
func OpenBackend(ctx context.Context, logger *slog.Logger, storeURL string) (Backend, error) {
	switch parseProvider(storeURL) {
	case "memory":
		return memory.New(), nil
	case "redis", "rediss":
		return redis.New(ctx, storeURL)
	case "postgres", "postgresql":
		return postgresql.New(ctx, logger, storeURL)
	default:
		return file.New(storeURL), nil
	}
}

// Open builds a Store on the backend selected by storeURL.
func Open(ctx context.Context, logger *slog.Logger, storeURL string) (*Store, error) {
	backend, err := OpenBackend(ctx, logger, storeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	return NewStore(backend, logger), nil
}

func parseProvider(storeURL string) string {
	parts := strings.SplitN(storeURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	for _, supported := range supportedProviders {
		if parts[0] == supported {
			return supported
		}
	}

	return "file"
}
