package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jigged/shopfloor/pkg/events"
)

// WatermillEventBus publishes events as JSON messages on events.Topic and
// decodes consumed messages back into the events package types.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) *WatermillEventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Publish sends event on events.Topic; key is usually the work order or station id.
func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event.GetType(), err)
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(events.Topic, msg)
}

// Subscribe starts delivering messages to the registered handlers until ctx
// ends. Messages of unhandled types are acknowledged and dropped.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	messages, err := eb.subscriber.Subscribe(ctx, events.Topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

			eb.mu.RLock()
			handler, exists := eb.subscriptions[eventType]
			eb.mu.RUnlock()

			if !exists {
				msg.Ack()

				continue
			}

			event := newEvent(eventType)
			if event == nil {
				msg.Nack()

				continue
			}

			err := json.Unmarshal(msg.Payload, event)
			if err != nil {
				msg.Nack()

				continue
			}

			err = handler(ctx, event)
			if err != nil {
				msg.Nack()

				continue
			}

			msg.Ack()
		}
	}()

	return nil
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

func (eb *WatermillEventBus) Close() error {
	err := eb.publisher.Close()
	if err != nil {
		return err
	}

	return eb.subscriber.Close()
}

func newEvent(eventType events.EventType) Event {
	switch eventType {
	case events.WorkOrderSubmittedEvent:
		return &events.WorkOrderSubmitted{}
	case events.WorkOrderApprovedEvent:
		return &events.WorkOrderApproved{}
	case events.WorkOrderRejectedEvent:
		return &events.WorkOrderRejected{}
	case events.WorkOrderFinishedEvent:
		return &events.WorkOrderFinished{}
	case events.StationStartedEvent:
		return &events.StationStarted{}
	case events.StationStoppedEvent:
		return &events.StationStopped{}
	case events.StationCompletedEvent:
		return &events.StationCompleted{}
	case events.StationOccupiedEvent:
		return &events.StationOccupied{}
	case events.StationTakenOverEvent:
		return &events.StationTakenOver{}
	case events.StationReleasedEvent:
		return &events.StationReleased{}
	case events.OccupancyExpiredEvent:
		return &events.OccupancyExpired{}
	case events.TemplateRegisteredEvent:
		return &events.TemplateRegistered{}
	default:
		return nil
	}
}
