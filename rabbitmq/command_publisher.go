package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/command"
)

// CommandPublisher sends saga commands on the best-effort direct path. The
// message id carries the command's event id so consumers deduplicate
// against the durable outbox copy of the same command.
type CommandPublisher struct {
	publisher *Publisher
	logger    *zap.Logger
}

// NewCommandPublisher wraps a confirming publisher.
func NewCommandPublisher(publisher *Publisher, logger *zap.Logger) (*CommandPublisher, error) {
	if publisher == nil {
		return nil, ErrChannelRequired
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &CommandPublisher{publisher: publisher, logger: logger}, nil
}

// SendCommand publishes a command to its action's topic with default
// priority.
func (commandPublisher *CommandPublisher) SendCommand(ctx context.Context, cmd *command.SagaCommand) error {
	return commandPublisher.SendCommandWithPriority(ctx, cmd, 5)
}

// SendCommandWithPriority publishes a command with an explicit AMQP
// priority. The routing key is the saga id so all commands of one saga land
// on the same queue partition in order.
func (commandPublisher *CommandPublisher) SendCommandWithPriority(ctx context.Context, cmd *command.SagaCommand, priority int) error {
	if cmd == nil {
		return ErrCommandRequired
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command %s: %w", cmd.Action, err)
	}

	topic := command.TopicFor(cmd.Action)

	msg := amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     cmd.EventID.String(),
		CorrelationId: cmd.CorrelationID,
		Timestamp:     time.Now().UTC(),
		Type:          cmd.Action,
		Priority:      clampPriority(priority),
		Headers: amqp.Table{
			"saga_id":    cmd.SagaID,
			"booking_id": cmd.BookingID.String(),
			"topic":      topic,
		},
		Body: body,
	}

	if err := commandPublisher.publisher.Publish(ctx, CommandExchange, cmd.SagaID, msg); err != nil {
		return fmt.Errorf("sending command %s for saga %s: %w", cmd.Action, cmd.SagaID, err)
	}

	commandPublisher.logger.Debug("command sent",
		zap.String("saga_id", cmd.SagaID),
		zap.String("action", cmd.Action),
		zap.String("event_id", cmd.EventID.String()))

	return nil
}

func clampPriority(priority int) uint8 {
	if priority < 1 {
		return 1
	}

	if priority > 10 {
		return 10
	}

	return uint8(priority)
}
