//go:build unit

package rabbitmq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeChannel acks every publish unless told otherwise.
type fakeChannel struct {
	mu         sync.Mutex
	confirms   chan amqp.Confirmation
	published  []publishedMessage
	publishErr error
	nack       bool
	silent     bool
	closed     bool
	tag        uint64
}

type publishedMessage struct {
	exchange   string
	routingKey string
	msg        amqp.Publishing
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{}
}

func (channel *fakeChannel) Confirm(bool) error { return nil }

func (channel *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	channel.mu.Lock()
	defer channel.mu.Unlock()

	channel.confirms = confirm

	return confirm
}

func (channel *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	channel.mu.Lock()
	defer channel.mu.Unlock()

	if channel.publishErr != nil {
		return channel.publishErr
	}

	channel.published = append(channel.published, publishedMessage{exchange: exchange, routingKey: key, msg: msg})
	channel.tag++

	if !channel.silent {
		channel.confirms <- amqp.Confirmation{DeliveryTag: channel.tag, Ack: !channel.nack}
	}

	return nil
}

func (channel *fakeChannel) ExchangeDeclare(string, string, bool, bool, bool, bool, amqp.Table) error {
	return nil
}

func (channel *fakeChannel) Close() error {
	channel.mu.Lock()
	defer channel.mu.Unlock()

	channel.closed = true

	return nil
}

func (channel *fakeChannel) messages() []publishedMessage {
	channel.mu.Lock()
	defer channel.mu.Unlock()

	return append([]publishedMessage(nil), channel.published...)
}

func newTestPublisher(t *testing.T, channel *fakeChannel, opts ...PublisherOption) *Publisher {
	t.Helper()

	publisher, err := NewPublisher(channel, zap.NewNop(), opts...)
	require.NoError(t, err)

	return publisher
}

func TestPublisherConfirmedPublish(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	publisher := newTestPublisher(t, channel)

	err := publisher.Publish(context.Background(), EventExchange, "saga-1", amqp.Publishing{Body: []byte("{}")})
	require.NoError(t, err)
	require.Len(t, channel.messages(), 1)
}

func TestPublisherNack(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	channel.nack = true
	publisher := newTestPublisher(t, channel)

	err := publisher.Publish(context.Background(), EventExchange, "saga-1", amqp.Publishing{})
	require.ErrorIs(t, err, ErrPublishNacked)
}

func TestPublisherConfirmTimeout(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	channel.silent = true
	publisher := newTestPublisher(t, channel, WithConfirmTimeout(10*time.Millisecond))

	err := publisher.Publish(context.Background(), EventExchange, "saga-1", amqp.Publishing{})
	require.ErrorIs(t, err, ErrConfirmTimeout)
}

func TestPublisherBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	channel.publishErr = errors.New("connection refused")
	publisher := newTestPublisher(t, channel)

	for i := 0; i < 5; i++ {
		err := publisher.Publish(context.Background(), EventExchange, "saga-1", amqp.Publishing{})
		require.Error(t, err)
	}

	require.Equal(t, gobreaker.StateOpen, publisher.BreakerState())

	err := publisher.Publish(context.Background(), EventExchange, "saga-1", amqp.Publishing{})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestPublisherClose(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	publisher := newTestPublisher(t, channel)

	require.NoError(t, publisher.Close())
	require.NoError(t, publisher.Close())
	require.True(t, channel.closed)

	err := publisher.Publish(context.Background(), EventExchange, "saga-1", amqp.Publishing{})
	require.ErrorIs(t, err, ErrPublisherClosed)
}

func TestNewPublisherRequiresChannel(t *testing.T) {
	t.Parallel()

	_, err := NewPublisher(nil, zap.NewNop())
	require.ErrorIs(t, err, ErrChannelRequired)

	var typedNil *fakeChannel
	_, err = NewPublisher(typedNil, zap.NewNop())
	require.ErrorIs(t, err, ErrChannelRequired)
}

func TestCommandPublisherRouting(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	publisher := newTestPublisher(t, channel)

	commandPublisher, err := NewCommandPublisher(publisher, zap.NewNop())
	require.NoError(t, err)

	cmd := newTestCommand(t, "RESERVE_FLIGHT")
	require.NoError(t, commandPublisher.SendCommandWithPriority(context.Background(), cmd, 8))

	messages := channel.messages()
	require.Len(t, messages, 1)
	require.Equal(t, CommandExchange, messages[0].exchange)
	require.Equal(t, cmd.SagaID, messages[0].routingKey)
	require.Equal(t, cmd.EventID.String(), messages[0].msg.MessageId)
	require.Equal(t, "RESERVE_FLIGHT", messages[0].msg.Type)
	require.Equal(t, uint8(8), messages[0].msg.Priority)
	require.Equal(t, "booking-saga-commands", messages[0].msg.Headers["topic"])
}

func TestCommandPublisherPaymentTopic(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	publisher := newTestPublisher(t, channel)

	commandPublisher, err := NewCommandPublisher(publisher, zap.NewNop())
	require.NoError(t, err)

	cmd := newTestCommand(t, "PROCESS_PAYMENT")
	require.NoError(t, commandPublisher.SendCommand(context.Background(), cmd))

	messages := channel.messages()
	require.Len(t, messages, 1)
	require.Equal(t, "payment-saga-commands", messages[0].msg.Headers["topic"])

	require.ErrorIs(t, commandPublisher.SendCommand(context.Background(), nil), ErrCommandRequired)
}

func TestClampPriority(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint8(1), clampPriority(-3))
	require.Equal(t, uint8(5), clampPriority(5))
	require.Equal(t, uint8(10), clampPriority(99))
}

func TestEventPublisherMapping(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	publisher := newTestPublisher(t, channel)

	eventPublisher, err := NewEventPublisher(publisher, zap.NewNop())
	require.NoError(t, err)

	event := newTestOutboxEvent(t, "BookingCompleted", "booking-events")
	require.NoError(t, eventPublisher.PublishEvent(context.Background(), event))

	messages := channel.messages()
	require.Len(t, messages, 1)
	require.Equal(t, EventExchange, messages[0].exchange)
	require.Equal(t, event.PartitionKey, messages[0].routingKey)
	require.Equal(t, event.ID.String(), messages[0].msg.MessageId)
	require.Equal(t, "BookingCompleted", messages[0].msg.Type)

	require.ErrorIs(t, eventPublisher.PublishEvent(context.Background(), nil), ErrEventRequired)
}

func TestEventPublisherCommandTopicUsesCommandExchange(t *testing.T) {
	t.Parallel()

	channel := newFakeChannel()
	publisher := newTestPublisher(t, channel)

	eventPublisher, err := NewEventPublisher(publisher, zap.NewNop())
	require.NoError(t, err)

	event := newTestOutboxEvent(t, "SagaCommand", "booking-saga-commands")
	require.NoError(t, eventPublisher.PublishEvent(context.Background(), event))

	messages := channel.messages()
	require.Len(t, messages, 1)
	require.Equal(t, CommandExchange, messages[0].exchange)
}
