package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/internal/nilcheck"
)

// Publisher sends messages with publisher confirms behind a circuit
// breaker. Publishes are serialized so confirmations map to messages
// without delivery-tag bookkeeping.
type Publisher struct {
	channel        Channel
	confirms       chan amqp.Confirmation
	breaker        *gobreaker.CircuitBreaker
	logger         *zap.Logger
	confirmTimeout time.Duration

	publishMu sync.Mutex
	mu        sync.RWMutex
	closed    bool
}

// PublisherOption customizes a publisher.
type PublisherOption func(*Publisher)

// WithConfirmTimeout sets how long to wait for a broker confirmation.
func WithConfirmTimeout(timeout time.Duration) PublisherOption {
	return func(publisher *Publisher) {
		if timeout > 0 {
			publisher.confirmTimeout = timeout
		}
	}
}

// WithBreakerSettings replaces the default circuit breaker settings. Name,
// ReadyToTrip and OnStateChange are filled in when left zero.
func WithBreakerSettings(settings gobreaker.Settings) PublisherOption {
	return func(publisher *Publisher) {
		publisher.breaker = gobreaker.NewCircuitBreaker(publisher.fillBreakerDefaults(settings))
	}
}

// NewPublisher puts the channel in confirm mode and wraps it.
func NewPublisher(channel Channel, logger *zap.Logger, opts ...PublisherOption) (*Publisher, error) {
	if err := nilcheck.Require(channel, ErrChannelRequired); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	if err := channel.Confirm(false); err != nil {
		return nil, fmt.Errorf("enabling confirm mode: %w", err)
	}

	confirms := make(chan amqp.Confirmation, confirmBuffer)
	channel.NotifyPublish(confirms)

	publisher := &Publisher{
		channel:        channel,
		confirms:       confirms,
		logger:         logger,
		confirmTimeout: DefaultConfirmTimeout,
	}

	publisher.breaker = gobreaker.NewCircuitBreaker(publisher.fillBreakerDefaults(gobreaker.Settings{}))

	for _, opt := range opts {
		opt(publisher)
	}

	return publisher, nil
}

func (publisher *Publisher) fillBreakerDefaults(settings gobreaker.Settings) gobreaker.Settings {
	if settings.Name == "" {
		settings.Name = "rabbitmq-publisher"
	}

	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}

	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}

	if settings.OnStateChange == nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			publisher.logger.Warn("publisher circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
	}

	return settings
}

// Publish sends one message and waits for the broker to confirm it.
func (publisher *Publisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	publisher.mu.RLock()
	closed := publisher.closed
	publisher.mu.RUnlock()

	if closed {
		return ErrPublisherClosed
	}

	_, err := publisher.breaker.Execute(func() (any, error) {
		return nil, publisher.publishAndConfirm(ctx, exchange, routingKey, msg)
	})

	return err
}

func (publisher *Publisher) publishAndConfirm(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	publisher.publishMu.Lock()
	defer publisher.publishMu.Unlock()

	if err := publisher.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publishing to %s/%s: %w", exchange, routingKey, err)
	}

	timeout := time.NewTimer(publisher.confirmTimeout)
	defer timeout.Stop()

	select {
	case confirmation, ok := <-publisher.confirms:
		if !ok {
			return ErrPublisherClosed
		}

		if !confirmation.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmation.DeliveryTag)
		}

		return nil
	case <-timeout.C:
		return ErrConfirmTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BreakerState reports the circuit breaker state for health checks.
func (publisher *Publisher) BreakerState() gobreaker.State {
	return publisher.breaker.State()
}

// Close closes the underlying channel. Further publishes fail with
// ErrPublisherClosed.
func (publisher *Publisher) Close() error {
	publisher.mu.Lock()
	if publisher.closed {
		publisher.mu.Unlock()

		return nil
	}

	publisher.closed = true
	publisher.mu.Unlock()

	if err := publisher.channel.Close(); err != nil {
		return fmt.Errorf("closing publisher channel: %w", err)
	}

	return nil
}
