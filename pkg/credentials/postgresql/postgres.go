// Package postgresql provides a PostgreSQL-backed credential backend for
// shared or server-side deployments of the client.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

type Backend struct {
	db     *sql.DB
	logger *slog.Logger
}

// New connects to databaseURL and runs pending migrations.
func New(ctx context.Context, logger *slog.Logger, databaseURL string) (*Backend, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("module", "credentials_postgresql")

	manager := &migrationManager{db: database, logger: logger, migrations: migrations()}

	err = manager.run(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Backend{db: database, logger: logger}, nil
}

func (b *Backend) Get(ctx context.Context, name string) (string, bool, error) {
	var value string

	err := b.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE name = $1", name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("failed to read credential %s: %w", name, err)
	}

	return value, true, nil
}

func (b *Backend) Set(ctx context.Context, name, value string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO credentials (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, name, value)
	if err != nil {
		return fmt.Errorf("failed to store credential %s: %w", name, err)
	}

	return nil
}

func (b *Backend) Delete(ctx context.Context, name string) error {
	_, err := b.db.ExecContext(ctx, "DELETE FROM credentials WHERE name = $1", name)
	if err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", name, err)
	}

	return nil
}

func (b *Backend) HealthCheck(ctx context.Context) error {
	err := b.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (b *Backend) Close(_ context.Context) error {
	if b.db == nil {
		return nil
	}

	err := b.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	return nil
}
