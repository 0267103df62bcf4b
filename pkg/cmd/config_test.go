package cmd_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/flowscribe/pkg/cmd"
	"github.com/dukex/flowscribe/pkg/config"
	"github.com/dukex/flowscribe/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func loadWith(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()

	var (
		cfg     *config.Config
		loadErr error
	)

	command := &cli.Command{
		Name: "flowscribe-test",
		Flags: append(cmd.CommonFlags(),
			&cli.StringFlag{Name: "proxy-url"},
			&cli.DurationFlag{Name: "generation-timeout"},
			&cli.IntFlag{Name: "execution-limit"},
			&cli.StringFlag{Name: "event-bus"},
			&cli.StringSliceFlag{Name: "kafka-brokers"},
		),
		Action: func(_ context.Context, command *cli.Command) error {
			cfg, loadErr = cmd.LoadConfig(command)

			return nil
		},
	}

	require.NoError(t, command.Run(context.Background(), append([]string{"flowscribe-test"}, args...)))

	return cfg, loadErr
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flowscribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("proxy:\n  url: https://file.example.com\nlog:\n  level: warn\n"), 0o600))

	cfg, err := loadWith(t,
		"--config", path,
		"--proxy-url", "https://flag.example.com",
		"--generation-timeout", "45s",
		"--execution-limit", "10",
		"--store-url", "memory://",
	)
	require.NoError(t, err)

	assert.Equal(t, "https://flag.example.com", cfg.Proxy.URL)
	assert.Equal(t, 45*time.Second, cfg.Generation.Timeout)
	assert.Equal(t, 10, cfg.Catalog.ExecutionLimit)
	assert.Equal(t, "memory://", cfg.StoreURL)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadConfig_InvalidFlag(t *testing.T) {
	t.Parallel()

	_, err := loadWith(t, "--log-format", "xml")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestLoadConfig_EventBus(t *testing.T) {
	t.Parallel()

	cfg, err := loadWith(t, "--event-bus", "kafka", "--kafka-brokers", "localhost:9092,localhost:9093")
	require.NoError(t, err)

	assert.Equal(t, "kafka", cfg.EventBus.Provider)
	assert.Equal(t, []string{"localhost:9092", "localhost:9093"}, cfg.EventBus.Brokers)

	_, err = loadWith(t, "--event-bus", "kafka")
	require.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = loadWith(t, "--event-bus", "nats")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewEventBus(t *testing.T) {
	t.Parallel()

	bus, err := cmd.NewEventBus(config.EventBusConfig{}, log.Discard())
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	_, err = cmd.NewEventBus(config.EventBusConfig{Provider: "kafka"}, log.Discard())
	require.Error(t, err)

	_, err = cmd.NewEventBus(config.EventBusConfig{Provider: "nats"}, log.Discard())
	require.Error(t, err)
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("FLOWSCRIBE_TEST_LOG_FORMAT=json\n"), 0o600))

	t.Setenv("FLOWSCRIBE_TEST_LOG_FORMAT", "")
	require.NoError(t, os.Unsetenv("FLOWSCRIBE_TEST_LOG_FORMAT"))

	require.NoError(t, cmd.LoadEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "json", os.Getenv("FLOWSCRIBE_TEST_LOG_FORMAT"))
}
