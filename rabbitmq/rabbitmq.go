// Package rabbitmq carries saga commands and domain events over AMQP. All
// publishes use publisher confirms so a success really means the broker has
// the message, and a circuit breaker sheds load when the broker is down so
// callers fail fast instead of piling up on a dead connection.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrChannelRequired is returned when a publisher is built without a channel.
	ErrChannelRequired = errors.New("rabbitmq: channel is required")

	// ErrPublisherClosed is returned when publishing on a closed publisher.
	ErrPublisherClosed = errors.New("rabbitmq: publisher is closed")

	// ErrPublishNacked is returned when the broker refuses a message.
	ErrPublishNacked = errors.New("rabbitmq: message nacked by broker")

	// ErrConfirmTimeout is returned when the broker confirmation does not
	// arrive in time.
	ErrConfirmTimeout = errors.New("rabbitmq: confirmation timed out")

	// ErrCommandRequired is returned when a nil command is published.
	ErrCommandRequired = errors.New("rabbitmq: command is required")

	// ErrEventRequired is returned when a nil outbox event is published.
	ErrEventRequired = errors.New("rabbitmq: event is required")
)

const (
	// CommandExchange is the topic exchange saga commands are published to.
	CommandExchange = "booking.saga.commands"

	// EventExchange is the topic exchange domain events are published to.
	EventExchange = "booking.saga.events"

	// DefaultConfirmTimeout is the default wait for a broker confirmation.
	DefaultConfirmTimeout = 5 * time.Second

	// confirmBuffer sizes the confirmation channel. Publishes are
	// serialized, so one slot would do; the buffer absorbs stray confirms
	// after a timeout.
	confirmBuffer = 16
)

// Channel is the subset of *amqp.Channel the publishers use. Tests supply
// a fake.
type Channel interface {
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Close() error
}

// DeclareTopology creates the exchanges the saga publishes to. It is safe
// to call on every start.
func DeclareTopology(channel Channel) error {
	for _, exchange := range []string{CommandExchange, EventExchange} {
		if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declaring exchange %s: %w", exchange, err)
		}
	}

	return nil
}
