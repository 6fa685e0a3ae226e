//go:build unit

package rabbitmq

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pdh-travel/booking-saga/command"
	"github.com/pdh-travel/booking-saga/outbox"
)

func newTestCommand(t *testing.T, action string) *command.SagaCommand {
	t.Helper()

	cmd := command.New("saga-"+uuid.NewString()[:8], uuid.New(), action)
	cmd.CorrelationID = uuid.NewString()

	return cmd
}

func newTestOutboxEvent(t *testing.T, eventType, topic string) *outbox.Event {
	t.Helper()

	event, err := outbox.NewEvent(eventType, "Booking", uuid.NewString(), []byte(`{"ok":true}`),
		outbox.WithTopic(topic),
		outbox.WithPartitionKey("saga-1"),
		outbox.WithSaga("saga-1", uuid.New()),
	)
	require.NoError(t, err)

	return event
}

func TestDeclareTopology(t *testing.T) {
	t.Parallel()

	require.NoError(t, DeclareTopology(newFakeChannel()))
}
