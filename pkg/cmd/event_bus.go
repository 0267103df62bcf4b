package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/flowscribe/pkg/config"
	"github.com/dukex/flowscribe/pkg/eventbus"
)

var supportedEventBusProviders = []string{"gochannel", "kafka"}

// NewEventBus creates the session event bus for the configured provider. An
// empty provider selects the in-process gochannel bus.
func NewEventBus(cfg config.EventBusConfig, logger *slog.Logger) (eventbus.EventBus, error) {
	switch cfg.Provider {
	case "", "gochannel":
		return eventbus.NewGoChannelEventBus(logger), nil
	case "kafka":
		bus, err := eventbus.NewKafkaEventBus(eventbus.KafkaConfig{
			Brokers:       cfg.Brokers,
			ConsumerGroup: cfg.ConsumerGroup,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka event bus: %w", err)
		}

		return bus, nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q (supported: %v)", cfg.Provider, supportedEventBusProviders)
	}
}
