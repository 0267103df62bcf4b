// Package eventbus delivers session events to subscribers in this process or,
// through Kafka, in others.
package eventbus

import (
	"context"

	"github.com/dukex/flowscribe/pkg/events"
)

// Event is a notification about one panel's workflow. Its workflow id is the
// fallback partition key.
type Event interface {
	GetType() events.EventType
	GetWorkflowID() string
}

type EventPublisher interface {
	// Publish sends event keyed by key, or by the event's workflow id when
	// key is empty. Events sharing a key are delivered in publish order.
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
