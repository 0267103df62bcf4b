package eventbus

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/flowscribe/pkg/events"
)

var ErrNoBrokers = errors.New("at least one Kafka broker is required")

// KafkaConfig locates the cluster that receives session events.
type KafkaConfig struct {
	Brokers []string
	// ConsumerGroup defaults to "cg-flowscribe".
	ConsumerGroup string
}

// partitionByKey keeps the events of one workflow on one partition, so they
// are consumed in publish order.
func partitionByKey(_ string, msg *message.Message) (string, error) {
	return msg.Metadata.Get(events.EventMetadataKey), nil
}

// NewKafkaEventBus builds a bus that publishes session events to Kafka, so
// other processes can follow a session.
func NewKafkaEventBus(config KafkaConfig, logger *slog.Logger) (*WatermillEventBus, error) {
	if len(config.Brokers) == 0 || config.Brokers[0] == "" {
		return nil, ErrNoBrokers
	}

	if config.ConsumerGroup == "" {
		config.ConsumerGroup = "cg-flowscribe"
	}

	wmLogger := watermill.NewSlogLogger(logger)
	marshaler := kafka.NewWithPartitioningMarshaler(partitionByKey)

	subscriberConfig := kafka.DefaultSaramaSubscriberConfig()
	subscriberConfig.Consumer.Offsets.Initial = sarama.OffsetOldest

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               config.Brokers,
			Unmarshaler:           marshaler,
			OverwriteSaramaConfig: subscriberConfig,
			ConsumerGroup:         config.ConsumerGroup,
			OTELEnabled:           true,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka subscriber: %w", err)
	}

	publisherConfig := sarama.NewConfig()
	publisherConfig.Producer.Return.Successes = true
	publisherConfig.Producer.Partitioner = sarama.NewHashPartitioner

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               config.Brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: publisherConfig,
			OTELEnabled:           true,
		},
		wmLogger,
	)
	if err != nil {
		_ = subscriber.Close()

		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}

	return NewWatermillEventBus(publisher, subscriber, logger), nil
}
