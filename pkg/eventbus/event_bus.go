// Package eventbus moves shop-floor events from the engine onto a broker and
// delivers them back to in-process consumers such as the audit log.
package eventbus

import (
	"context"
	"fmt"

	"github.com/jigged/shopfloor/pkg/events"
)

// Event is a notification published by the engine.
type Event interface {
	GetType() events.EventType
}

// EventPublisher sends an event keyed by the work order or station it concerns.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event Event) error
}

// EventHandler consumes one decoded event. Returning an error asks the broker
// to redeliver it.
type EventHandler func(ctx context.Context, event Event) error

// EventSubscriber routes consumed events to the handler registered for their type.
// Handlers must be registered before Subscribe starts delivery.
type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventBus is a broker connection used in both directions.
type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
}

// HandleAll registers handler for every type in eventTypes.
func HandleAll(subscriber EventSubscriber, eventTypes []events.EventType, handler EventHandler) error {
	for _, eventType := range eventTypes {
		err := subscriber.Handle(eventType, handler)
		if err != nil {
			return fmt.Errorf("failed to register handler for %s: %w", eventType, err)
		}
	}

	return nil
}
