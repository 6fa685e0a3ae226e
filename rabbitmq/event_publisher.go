package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/command"
	"github.com/pdh-travel/booking-saga/outbox"
)

// EventPublisher publishes drained outbox events. It satisfies the relay's
// publisher contract.
type EventPublisher struct {
	publisher *Publisher
	logger    *zap.Logger
}

// NewEventPublisher wraps a confirming publisher.
func NewEventPublisher(publisher *Publisher, logger *zap.Logger) (*EventPublisher, error) {
	if publisher == nil {
		return nil, ErrChannelRequired
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventPublisher{publisher: publisher, logger: logger}, nil
}

// PublishEvent sends one outbox event. The routing key is the event's
// partition key when set, so per-saga ordering survives the broker hop, and
// the message id is the outbox row id for consumer-side deduplication.
func (eventPublisher *EventPublisher) PublishEvent(ctx context.Context, event *outbox.Event) error {
	if event == nil {
		return ErrEventRequired
	}

	routingKey := event.PartitionKey
	if routingKey == "" {
		routingKey = event.EventType
	}

	exchange := EventExchange
	if event.Topic == command.BookingCommandsTopic || event.Topic == command.PaymentCommandsTopic {
		exchange = CommandExchange
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Timestamp:    time.Now().UTC(),
		Type:         event.EventType,
		Priority:     clampPriority(event.Priority),
		Headers: amqp.Table{
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID,
			"saga_id":        event.SagaID,
			"booking_id":     event.BookingID.String(),
			"topic":          event.Topic,
		},
		Body: []byte(event.Payload),
	}

	if err := eventPublisher.publisher.Publish(ctx, exchange, routingKey, msg); err != nil {
		return fmt.Errorf("publishing outbox event %s (%s): %w", event.ID, event.EventType, err)
	}

	eventPublisher.logger.Debug("outbox event published",
		zap.String("event_id", event.ID.String()),
		zap.String("event_type", event.EventType),
		zap.String("topic", event.Topic))

	return nil
}
