//go:build unit

package command

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewCommand(t *testing.T) {
	t.Parallel()

	bookingID := uuid.New()
	cmd := New("saga-1", bookingID, ActionReserveFlight)

	require.NotEqual(t, uuid.Nil, cmd.EventID)
	require.Equal(t, "saga-1", cmd.SagaID)
	require.Equal(t, bookingID, cmd.BookingID)
	require.Equal(t, ActionReserveFlight, cmd.Action)
	require.Equal(t, 0, cmd.RetryCount)
	require.NotNil(t, cmd.Metadata)
	require.False(t, cmd.IssuedAt.IsZero())
}

func TestIsCompensation(t *testing.T) {
	t.Parallel()

	require.False(t, New("s", uuid.New(), ActionReserveFlight).IsCompensation())
	require.False(t, New("s", uuid.New(), ActionProcessPayment).IsCompensation())
	require.True(t, New("s", uuid.New(), ActionCancelFlight).IsCompensation())
	require.True(t, New("s", uuid.New(), ActionCancelHotel).IsCompensation())
	require.True(t, New("s", uuid.New(), ActionRefundPayment).IsCompensation())
	require.True(t, New("s", uuid.New(), ActionCancelBooking).IsCompensation())
}

func TestMarkAsCompensation(t *testing.T) {
	t.Parallel()

	cmd := New("s", uuid.New(), ActionCancelHotel)
	cmd.MarkAsCompensation("payment failed")

	require.Equal(t, "true", cmd.GetMetadata(MetadataIsCompensation))
	require.Equal(t, "payment failed", cmd.GetMetadata(MetadataCompensationReason))
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	original := New("s", uuid.New(), ActionReserveHotel)
	original.AddMetadata("currency", "USD")

	retry := original.WithRetry()

	require.Equal(t, 1, retry.RetryCount)
	require.Equal(t, 0, original.RetryCount)
	require.NotEqual(t, original.EventID, retry.EventID)
	require.Equal(t, "USD", retry.GetMetadata("currency"))
	require.Equal(t, "0", retry.GetMetadata(MetadataPreviousRetryCount))
	require.Empty(t, original.GetMetadata(MetadataPreviousRetryCount))
}

func TestCompensationFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, ActionCancelFlight, CompensationFor(ActionReserveFlight))
	require.Equal(t, ActionCancelHotel, CompensationFor(ActionReserveHotel))
	require.Equal(t, ActionRefundPayment, CompensationFor(ActionProcessPayment))
	require.Equal(t, ActionCancelBooking, CompensationFor("UNKNOWN_ACTION"))
}

func TestTopicFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, PaymentCommandsTopic, TopicFor(ActionProcessPayment))
	require.Equal(t, PaymentCommandsTopic, TopicFor(ActionRefundPayment))
	require.Equal(t, BookingCommandsTopic, TopicFor(ActionReserveFlight))
	require.Equal(t, BookingCommandsTopic, TopicFor(ActionCancelHotel))
}
