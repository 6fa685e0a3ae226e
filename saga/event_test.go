//go:build unit

package saga

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	t.Parallel()

	kind, err := ParseKind("PaymentProcessed")
	require.NoError(t, err)
	require.Equal(t, KindPaymentProcessed, kind)

	_, err = ParseKind("SeatUpgraded")
	require.ErrorIs(t, err, ErrUnknownEventKind)

	_, err = ParseKind("")
	require.ErrorIs(t, err, ErrUnknownEventKind)
}

func TestKindClassification(t *testing.T) {
	t.Parallel()

	failures := []Kind{KindFlightReservationFailed, KindHotelReservationFailed, KindPaymentFailed}
	acks := []Kind{KindFlightReservationCancelled, KindHotelReservationCancelled, KindPaymentRefunded, KindPaymentCancelled}
	forward := []Kind{KindFlightReserved, KindHotelReserved, KindPaymentProcessed}

	for _, kind := range failures {
		require.True(t, kind.IsFailure(), kind)
		require.False(t, kind.IsCompensationAck(), kind)
	}

	for _, kind := range acks {
		require.True(t, kind.IsCompensationAck(), kind)
		require.False(t, kind.IsFailure(), kind)
	}

	for _, kind := range forward {
		require.False(t, kind.IsFailure(), kind)
		require.False(t, kind.IsCompensationAck(), kind)
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := Event{ID: uuid.New(), Kind: KindFlightReserved, BookingID: uuid.New()}
	require.NoError(t, valid.Validate())

	missingID := valid
	missingID.ID = uuid.Nil
	require.ErrorIs(t, missingID.Validate(), ErrEventIDRequired)

	missingBooking := valid
	missingBooking.BookingID = uuid.Nil
	require.ErrorIs(t, missingBooking.Validate(), ErrBookingIDRequired)

	unknownKind := valid
	unknownKind.Kind = "LoyaltyPointsAwarded"
	require.ErrorIs(t, unknownKind.Validate(), ErrUnknownEventKind)
}
