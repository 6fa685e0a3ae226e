//go:build unit

package command

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validFlightCommand() *SagaCommand {
	cmd := New("saga-1", uuid.New(), ActionReserveFlight)
	cmd.CustomerID = uuid.New()
	cmd.BookingType = "FLIGHT"
	cmd.TotalAmount = decimal.NewFromInt(199)
	cmd.FlightDetails = json.RawMessage(`{"flightId":"VN123"}`)

	return cmd
}

func TestValidateNilCommand(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)
	err := v.Validate(context.Background(), nil)
	require.ErrorIs(t, err, ErrBadCommand)
	require.ErrorIs(t, err, ErrCommandRequired)
}

func TestValidateStructuralFields(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	cmd := validFlightCommand()
	cmd.SagaID = ""
	require.ErrorIs(t, v.Validate(context.Background(), cmd), ErrBadCommand)

	cmd = validFlightCommand()
	cmd.BookingID = uuid.Nil
	require.ErrorIs(t, v.Validate(context.Background(), cmd), ErrBadCommand)

	cmd = validFlightCommand()
	cmd.Action = ""
	require.ErrorIs(t, v.Validate(context.Background(), cmd), ErrBadCommand)
}

func TestValidateFlightReservation(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	require.NoError(t, v.Validate(context.Background(), validFlightCommand()))

	cmd := validFlightCommand()
	cmd.FlightDetails = nil
	err := v.Validate(context.Background(), cmd)
	require.ErrorIs(t, err, ErrBadCommand)
	require.Contains(t, err.Error(), "flight details")

	cmd = validFlightCommand()
	cmd.BookingType = "HOTEL"
	err = v.Validate(context.Background(), cmd)
	require.ErrorIs(t, err, ErrBadCommand)
	require.Contains(t, err.Error(), "invalid booking type")

	// Unset booking type is tolerated across services.
	cmd = validFlightCommand()
	cmd.BookingType = ""
	require.NoError(t, v.Validate(context.Background(), cmd))
}

func TestValidateHotelReservation(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	cmd := New("saga-1", uuid.New(), ActionReserveHotel)
	cmd.BookingType = "COMBO"
	cmd.HotelDetails = json.RawMessage(`{"hotelId":"H9"}`)
	require.NoError(t, v.Validate(context.Background(), cmd))

	cmd.HotelDetails = nil
	err := v.Validate(context.Background(), cmd)
	require.ErrorIs(t, err, ErrBadCommand)
	require.Contains(t, err.Error(), "hotel details")

	cmd.HotelDetails = json.RawMessage(`{"hotelId":"H9"}`)
	cmd.BookingType = "FLIGHT"
	require.ErrorIs(t, v.Validate(context.Background(), cmd), ErrBadCommand)
}

func TestValidatePayment(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	cmd := New("saga-1", uuid.New(), ActionProcessPayment)
	cmd.PaymentDetails = json.RawMessage(`{"method":"CARD"}`)
	cmd.TotalAmount = decimal.NewFromInt(100)
	require.NoError(t, v.Validate(context.Background(), cmd))

	cmd.TotalAmount = decimal.Zero
	err := v.Validate(context.Background(), cmd)
	require.ErrorIs(t, err, ErrBadCommand)
	require.Contains(t, err.Error(), "greater than 0")

	cmd.TotalAmount = decimal.NewFromInt(-5)
	require.ErrorIs(t, v.Validate(context.Background(), cmd), ErrBadCommand)

	cmd.TotalAmount = decimal.NewFromInt(100)
	cmd.PaymentDetails = nil
	require.ErrorIs(t, v.Validate(context.Background(), cmd), ErrBadCommand)
}

func TestValidateRefundRequiresCustomer(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	cmd := New("saga-1", uuid.New(), ActionRefundPayment)
	cmd.MarkAsCompensation("payment failed")
	err := v.Validate(context.Background(), cmd)
	require.ErrorIs(t, err, ErrBadCommand)
	require.Contains(t, err.Error(), "customer id")

	cmd.CustomerID = uuid.New()
	require.NoError(t, v.Validate(context.Background(), cmd))
}

func TestValidateCancellationsWorkWithoutDetails(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	// Cancellations only need the booking ID; missing compensation metadata
	// warns but does not reject.
	cancelFlight := New("saga-1", uuid.New(), ActionCancelFlight)
	require.NoError(t, v.Validate(context.Background(), cancelFlight))

	cancelHotel := New("saga-1", uuid.New(), ActionCancelHotel)
	require.NoError(t, v.Validate(context.Background(), cancelHotel))
}

func TestValidateRetry(t *testing.T) {
	t.Parallel()

	v := NewValidator(nil)

	cmd := validFlightCommand()
	require.NoError(t, v.ValidateRetry(cmd))

	cmd.RetryCount = MaxCommandRetries
	require.NoError(t, v.ValidateRetry(cmd))

	cmd.RetryCount = MaxCommandRetries + 1
	require.ErrorIs(t, v.ValidateRetry(cmd), ErrRetryExhausted)

	cmd.RetryCount = -1
	require.ErrorIs(t, v.ValidateRetry(cmd), ErrRetryCountNegative)

	require.ErrorIs(t, v.ValidateRetry(nil), ErrCommandRequired)
}
