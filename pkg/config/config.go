// Package config loads flowscribe settings from an optional YAML file merged
// over built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/dukex/flowscribe/pkg/gateway"
	"github.com/dukex/flowscribe/pkg/models"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultTagFilter      = "explain my automation"
	DefaultExecutionLimit = 50
	DefaultServerAddr     = ":9092"
)

// Config holds every setting of the client and the intermediary service.
type Config struct {
	StoreURL   string           `yaml:"store_url"    validate:"required"`
	LLMKeyMode string           `yaml:"llm_key_mode" validate:"oneof=orchestrator client"`
	Proxy      ProxyConfig      `yaml:"proxy"`
	Generation GenerationConfig `yaml:"generation"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Log        LogConfig        `yaml:"log"`
	Tracing    TracingConfig    `yaml:"tracing"`
	EventBus   EventBusConfig   `yaml:"event_bus"`
	Server     ServerConfig     `yaml:"server"`
}

// ProxyConfig locates the intermediary service as seen by the client.
type ProxyConfig struct {
	URL    string `yaml:"url"     validate:"omitempty,url"`
	APIKey string `yaml:"api_key"`
}

// GenerationConfig locates the orchestration endpoint.
type GenerationConfig struct {
	URL        string        `yaml:"url"         validate:"omitempty,url"`
	Timeout    time.Duration `yaml:"timeout"`
	AppVersion string        `yaml:"app_version"`
}

type CatalogConfig struct {
	TagFilter       string `yaml:"tag_filter"`
	ExecutionLimit  int    `yaml:"execution_limit"  validate:"gte=0"`
	RefreshSchedule string `yaml:"refresh_schedule"`
}

type LogConfig struct {
	Level  string `yaml:"level"  validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EventBusConfig selects where session events go. Kafka needs brokers.
type EventBusConfig struct {
	Provider      string   `yaml:"provider"       validate:"oneof=gochannel kafka"`
	Brokers       []string `yaml:"brokers"        validate:"required_if=Provider kafka,dive,hostname_port"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// ServerConfig is read by the intermediary service only.
type ServerConfig struct {
	Addr          string `yaml:"addr"           validate:"required"`
	APIKey        string `yaml:"api_key"`
	OpenRouterURL string `yaml:"openrouter_url" validate:"omitempty,url"`
}

// Defaults returns the configuration used when no file is given.
func Defaults() Config {
	return Config{
		StoreURL:   defaultStoreURL(),
		LLMKeyMode: string(models.LLMKeyOrchestrator),
		Generation: GenerationConfig{
			Timeout:    gateway.MaxTimeout,
			AppVersion: gateway.DefaultAppVersion,
		},
		Catalog: CatalogConfig{
			TagFilter:      DefaultTagFilter,
			ExecutionLimit: DefaultExecutionLimit,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		EventBus: EventBusConfig{
			Provider: "gochannel",
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
	}
}

// Load reads path, fills unset keys from Defaults and validates the result.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)

		if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := mergo.Merge(&config, Defaults()); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the configuration and clamps the generation timeout.
func (c *Config) Validate() error {
	c.Generation.Timeout = gateway.ClampTimeout(c.Generation.Timeout)

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// KeyMode returns the parsed llm_key_mode.
func (c *Config) KeyMode() models.LLMKeyMode {
	mode, err := models.ParseLLMKeyMode(c.LLMKeyMode)
	if err != nil {
		return models.LLMKeyOrchestrator
	}

	return mode
}

func defaultStoreURL() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}

	return filepath.Join(dir, "flowscribe")
}
