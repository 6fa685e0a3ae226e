package saga

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of inbound event types the orchestrator consumes.
// Adding a kind means extending the switch in the orchestrator; the
// compiler-checked enum replaces dispatch on raw strings.
type Kind string

const (
	KindFlightReserved             Kind = "FlightReserved"
	KindFlightReservationFailed    Kind = "FlightReservationFailed"
	KindFlightReservationCancelled Kind = "FlightReservationCancelled"
	KindHotelReserved              Kind = "HotelReserved"
	KindHotelReservationFailed     Kind = "HotelReservationFailed"
	KindHotelReservationCancelled  Kind = "HotelReservationCancelled"
	KindPaymentProcessed           Kind = "PaymentProcessed"
	KindPaymentFailed              Kind = "PaymentFailed"
	KindPaymentRefunded            Kind = "PaymentRefunded"
	KindPaymentCancelled           Kind = "PaymentCancelled"
)

var knownKinds = map[Kind]struct{}{
	KindFlightReserved:             {},
	KindFlightReservationFailed:    {},
	KindFlightReservationCancelled: {},
	KindHotelReserved:              {},
	KindHotelReservationFailed:     {},
	KindHotelReservationCancelled:  {},
	KindPaymentProcessed:           {},
	KindPaymentFailed:              {},
	KindPaymentRefunded:            {},
	KindPaymentCancelled:           {},
}

// ParseKind maps a wire event type to a Kind.
func ParseKind(value string) (Kind, error) {
	kind := Kind(value)
	if _, ok := knownKinds[kind]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, value)
	}

	return kind, nil
}

// IsFailure reports whether the kind signals a failed forward step.
func (kind Kind) IsFailure() bool {
	switch kind {
	case KindFlightReservationFailed, KindHotelReservationFailed, KindPaymentFailed:
		return true
	}

	return false
}

// IsCompensationAck reports whether the kind acknowledges a compensation
// step, advancing the rollback chain.
func (kind Kind) IsCompensationAck() bool {
	switch kind {
	case KindFlightReservationCancelled, KindHotelReservationCancelled,
		KindPaymentRefunded, KindPaymentCancelled:
		return true
	}

	return false
}

// Event is one inbound domain event.
type Event struct {
	// ID is the broker message id, used for deduplication.
	ID uuid.UUID `json:"eventId"`

	Kind      Kind      `json:"eventType"`
	BookingID uuid.UUID `json:"bookingId"`

	// ErrorCode classifies a failure event for the compensation policy.
	ErrorCode string `json:"errorCode,omitempty"`

	// Reason is a human-readable failure description.
	Reason string `json:"reason,omitempty"`

	// RetryCount echoes the retry count of the command whose outcome this
	// event reports.
	RetryCount int `json:"retryCount,omitempty"`

	// Source names the emitting service.
	Source string `json:"source,omitempty"`

	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurredAt,omitempty"`
}

// Validate checks the fields the orchestrator cannot work without.
func (event Event) Validate() error {
	if event.ID == uuid.Nil {
		return ErrEventIDRequired
	}

	if event.BookingID == uuid.Nil {
		return ErrBookingIDRequired
	}

	if _, ok := knownKinds[event.Kind]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEventKind, event.Kind)
	}

	return nil
}
