// Package booking defines the collaborator boundary between the saga
// orchestration core and the external booking-record store. The core never
// persists bookings itself; it reads snapshots to build commands and writes
// back only the terminal status.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no booking exists for the requested ID.
var ErrNotFound = errors.New("booking not found")

// Type identifies which products a booking is composed of.
type Type string

const (
	TypeFlight Type = "FLIGHT"
	TypeHotel  Type = "HOTEL"
	TypeCombo  Type = "COMBO"
)

// IsValid reports whether the type is a known booking composition.
func (t Type) IsValid() bool {
	switch t {
	case TypeFlight, TypeHotel, TypeCombo:
		return true
	default:
		return false
	}
}

// HasFlight reports whether the booking includes a flight reservation step.
func (t Type) HasFlight() bool {
	return t == TypeFlight || t == TypeCombo
}

// HasHotel reports whether the booking includes a hotel reservation step.
func (t Type) HasHotel() bool {
	return t == TypeHotel || t == TypeCombo
}

// Status is the externally visible booking status written on saga outcomes.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusPaymentPending   Status = "PAYMENT_PENDING"
	StatusConfirmed        Status = "CONFIRMED"
	StatusCancelled        Status = "CANCELLED"
	StatusPaymentFailed    Status = "PAYMENT_FAILED"
	StatusValidationFailed Status = "VALIDATION_FAILED"
)

// Booking is the read-only snapshot the orchestrator needs to drive a saga.
type Booking struct {
	BookingID   uuid.UUID
	CustomerID  uuid.UUID
	Type        Type
	TotalAmount decimal.Decimal
	Currency    string
}

// Reader loads booking snapshots from the external booking-record store.
type Reader interface {
	Get(ctx context.Context, bookingID uuid.UUID) (*Booking, error)
}

// StatusWriter applies the saga's terminal outcome to the booking record.
type StatusWriter interface {
	MarkConfirmed(ctx context.Context, bookingID uuid.UUID, confirmationCode string) error
	MarkCancelled(ctx context.Context, bookingID uuid.UUID, status Status, reason string) error
}

// DetailsProvider supplies the opaque product payloads attached to saga
// commands. Payloads are passed through untouched; their schema belongs to
// the downstream services.
type DetailsProvider interface {
	FlightDetails(ctx context.Context, bookingID uuid.UUID) (json.RawMessage, error)
	HotelDetails(ctx context.Context, bookingID uuid.UUID) (json.RawMessage, error)
	PaymentDetails(ctx context.Context, bookingID uuid.UUID) (json.RawMessage, error)
}

// NewConfirmationCode generates a short human-readable confirmation code.
func NewConfirmationCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))

	return "CNF-" + raw[:10]
}
