package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"storefront-api/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing settlement events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderSettled publishes OrderSettled event
func (ep *EventPublisher) PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSettlementFailed publishes SettlementFailed event
func (ep *EventPublisher) PublishSettlementFailed(ctx context.Context, event *models.SettlementFailedEvent) error {
	return ep.producer.PublishEvent(ctx, event.EventID, event)
}

// EventHandler routes incoming settlement events
type EventHandler struct {
	onOrderSettled func(context.Context, *models.OrderSettledEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderSettled registers a handler for OrderSettled events
func (eh *EventHandler) OnOrderSettled(handler func(context.Context, *models.OrderSettledEvent) error) {
	eh.onOrderSettled = handler
}

// HandleMessage routes messages to the appropriate handler
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeOrderSettled:
		if eh.onOrderSettled != nil {
			var event models.OrderSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderSettled event: %w", err)
			}
			return eh.onOrderSettled(ctx, &event)
		}

	case models.EventTypeSettlementFailed:
		// reporting only, nothing to do in-process

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
