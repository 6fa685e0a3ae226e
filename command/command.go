// Package command defines the typed saga command sent to downstream services
// and the validation gate every command passes before leaving the
// orchestrator.
package command

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Saga command actions understood by downstream services. CANCEL_* and
// REFUND_* actions are the compensating counterparts of the forward steps.
const (
	ActionReserveFlight  = "RESERVE_FLIGHT"
	ActionReserveHotel   = "RESERVE_HOTEL"
	ActionProcessPayment = "PROCESS_PAYMENT"
	ActionCancelFlight   = "CANCEL_FLIGHT_RESERVATION"
	ActionCancelHotel    = "CANCEL_HOTEL_RESERVATION"
	ActionRefundPayment  = "REFUND_PAYMENT"
	ActionCancelBooking  = "CANCEL_BOOKING"
)

// Broker topics for command delivery. Payment commands ride a dedicated
// topic so the payment service owns its own consumer lag.
const (
	BookingCommandsTopic = "booking-saga-commands"
	PaymentCommandsTopic = "payment-saga-commands"
)

// Metadata keys carried on compensation commands.
const (
	MetadataIsCompensation     = "isCompensation"
	MetadataCompensationReason = "compensationReason"
	MetadataPreviousRetryCount = "previousRetryCount"
)

// SagaCommand is one typed instruction emitted by the orchestrator. It is
// immutable after send; retries are derived copies created via WithRetry.
type SagaCommand struct {
	EventID        uuid.UUID         `json:"eventId"`
	SagaID         string            `json:"sagaId"`
	BookingID      uuid.UUID         `json:"bookingId"`
	Action         string            `json:"action"`
	CustomerID     uuid.UUID         `json:"customerId,omitempty"`
	BookingType    string            `json:"bookingType,omitempty"`
	TotalAmount    decimal.Decimal   `json:"totalAmount"`
	FlightDetails  json.RawMessage   `json:"flightDetails,omitempty"`
	HotelDetails   json.RawMessage   `json:"hotelDetails,omitempty"`
	PaymentDetails json.RawMessage   `json:"paymentDetails,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RetryCount     int               `json:"retryCount"`
	CorrelationID  string            `json:"correlationId,omitempty"`
	IssuedAt       time.Time         `json:"issuedAt"`
}

// New creates a saga command with a fresh event ID. The event ID doubles as
// the idempotency key on both the outbox path and the direct send path, so
// consumers can suppress duplicates uniformly.
func New(sagaID string, bookingID uuid.UUID, action string) *SagaCommand {
	return &SagaCommand{
		EventID:   uuid.New(),
		SagaID:    sagaID,
		BookingID: bookingID,
		Action:    action,
		Metadata:  map[string]string{},
		IssuedAt:  time.Now().UTC(),
	}
}

// AddMetadata sets one metadata entry, allocating the map when needed.
func (cmd *SagaCommand) AddMetadata(key, value string) {
	if cmd.Metadata == nil {
		cmd.Metadata = map[string]string{}
	}

	cmd.Metadata[key] = value
}

// GetMetadata returns the metadata value for key, or the empty string.
func (cmd *SagaCommand) GetMetadata(key string) string {
	return cmd.Metadata[key]
}

// IsCompensation reports whether the action undoes a completed forward step.
func (cmd *SagaCommand) IsCompensation() bool {
	return strings.HasPrefix(cmd.Action, "CANCEL_") || strings.HasPrefix(cmd.Action, "REFUND_")
}

// MarkAsCompensation flags the command as compensating via metadata so
// downstream services can distinguish rollbacks from user cancellations.
func (cmd *SagaCommand) MarkAsCompensation(reason string) {
	cmd.AddMetadata(MetadataIsCompensation, "true")

	if reason != "" {
		cmd.AddMetadata(MetadataCompensationReason, reason)
	}
}

// HasFlightDetails reports whether a flight payload is attached.
func (cmd *SagaCommand) HasFlightDetails() bool {
	return len(cmd.FlightDetails) > 0
}

// HasHotelDetails reports whether a hotel payload is attached.
func (cmd *SagaCommand) HasHotelDetails() bool {
	return len(cmd.HotelDetails) > 0
}

// HasPaymentDetails reports whether a payment payload is attached.
func (cmd *SagaCommand) HasPaymentDetails() bool {
	return len(cmd.PaymentDetails) > 0
}

// WithRetry returns a derived copy with an incremented retry count and a
// fresh event ID, preserving the original as sent.
func (cmd *SagaCommand) WithRetry() *SagaCommand {
	retry := *cmd
	retry.EventID = uuid.New()
	retry.RetryCount = cmd.RetryCount + 1
	retry.IssuedAt = time.Now().UTC()

	retry.Metadata = make(map[string]string, len(cmd.Metadata)+1)
	for key, value := range cmd.Metadata {
		retry.Metadata[key] = value
	}

	retry.AddMetadata(MetadataPreviousRetryCount, strconv.Itoa(cmd.RetryCount))

	return &retry
}

// CompensationFor returns the compensating action for a forward action.
func CompensationFor(action string) string {
	switch action {
	case ActionReserveFlight:
		return ActionCancelFlight
	case ActionReserveHotel:
		return ActionCancelHotel
	case ActionProcessPayment:
		return ActionRefundPayment
	default:
		return ActionCancelBooking
	}
}

// TopicFor returns the broker topic a command action is routed to.
func TopicFor(action string) string {
	switch action {
	case ActionProcessPayment, ActionRefundPayment:
		return PaymentCommandsTopic
	default:
		return BookingCommandsTopic
	}
}

