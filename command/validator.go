package command

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Validation errors. ErrBadCommand wraps every rejection so callers can
// treat any validation failure as a synchronous bad-request.
var (
	ErrBadCommand         = errors.New("invalid saga command")
	ErrCommandRequired    = errors.New("saga command is required")
	ErrRetryExhausted     = errors.New("maximum retry count exceeded for saga command")
	ErrRetryCountNegative = errors.New("invalid retry count for saga command")
)

// MaxCommandRetries caps how many derived retry copies one command may spawn.
const MaxCommandRetries = 5

// Validator is the structural and business-rule gate applied before any
// command reaches the outbox. Validation failures are surfaced synchronously
// and never retried.
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a command validator. A nil logger falls back to nop.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Validator{logger: logger}
}

// Validate runs field validation followed by per-action business rules.
func (v *Validator) Validate(ctx context.Context, cmd *SagaCommand) error {
	if cmd == nil {
		return fmt.Errorf("%w: %w", ErrBadCommand, ErrCommandRequired)
	}

	if err := validation.ValidateStructWithContext(ctx, cmd,
		validation.Field(&cmd.SagaID, validation.Required.Error("sagaId is required")),
		validation.Field(&cmd.BookingID, validation.By(requiredUUID("bookingId"))),
		validation.Field(&cmd.Action, validation.Required.Error("action is required")),
	); err != nil {
		return fmt.Errorf("%w: %w", ErrBadCommand, err)
	}

	if err := v.validateBusinessRules(cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrBadCommand, err)
	}

	return nil
}

// ValidateRetry checks that a derived retry copy is still within budget.
func (v *Validator) ValidateRetry(cmd *SagaCommand) error {
	if cmd == nil {
		return fmt.Errorf("%w: %w", ErrBadCommand, ErrCommandRequired)
	}

	if cmd.RetryCount < 0 {
		return fmt.Errorf("%w: %w", ErrBadCommand, ErrRetryCountNegative)
	}

	if cmd.RetryCount > MaxCommandRetries {
		return fmt.Errorf("%w: %w", ErrBadCommand, ErrRetryExhausted)
	}

	return nil
}

func (v *Validator) validateBusinessRules(cmd *SagaCommand) error {
	switch cmd.Action {
	case ActionReserveFlight:
		return v.validateFlightReservation(cmd)
	case ActionReserveHotel:
		return v.validateHotelReservation(cmd)
	case ActionProcessPayment:
		return v.validatePayment(cmd)
	case ActionCancelFlight:
		v.warnUnmarkedCompensation(cmd)
		return nil
	case ActionCancelHotel:
		v.warnUnmarkedCompensation(cmd)
		return nil
	case ActionRefundPayment:
		return v.validateRefund(cmd)
	default:
		return nil
	}
}

func (v *Validator) validateFlightReservation(cmd *SagaCommand) error {
	if !cmd.HasFlightDetails() {
		return errors.New("flight details are required for flight reservation")
	}

	if cmd.BookingType != "" && cmd.BookingType != "FLIGHT" && cmd.BookingType != "COMBO" {
		return fmt.Errorf("invalid booking type for flight reservation: %s", cmd.BookingType)
	}

	return nil
}

func (v *Validator) validateHotelReservation(cmd *SagaCommand) error {
	if !cmd.HasHotelDetails() {
		return errors.New("hotel details are required for hotel reservation")
	}

	if cmd.BookingType != "" && cmd.BookingType != "HOTEL" && cmd.BookingType != "COMBO" {
		return fmt.Errorf("invalid booking type for hotel reservation: %s", cmd.BookingType)
	}

	return nil
}

func (v *Validator) validatePayment(cmd *SagaCommand) error {
	if !cmd.HasPaymentDetails() {
		return errors.New("payment details are required for payment processing")
	}

	if cmd.TotalAmount.Sign() <= 0 {
		return errors.New("payment amount must be greater than 0")
	}

	return nil
}

func (v *Validator) validateRefund(cmd *SagaCommand) error {
	v.warnUnmarkedCompensation(cmd)

	if cmd.CustomerID == uuid.Nil {
		return errors.New("customer id is required for payment refund")
	}

	return nil
}

// Cancellations are expected to carry the compensation flag but still work
// off the booking ID alone, so a missing flag only warns.
func (v *Validator) warnUnmarkedCompensation(cmd *SagaCommand) {
	if cmd.GetMetadata(MetadataIsCompensation) != "true" {
		v.logger.Warn("compensation command is not marked as compensation",
			zap.String("saga_id", cmd.SagaID),
			zap.String("action", cmd.Action),
		)
	}
}

func requiredUUID(field string) validation.RuleFunc {
	return func(value any) error {
		id, ok := value.(uuid.UUID)
		if !ok || id == uuid.Nil {
			return fmt.Errorf("%s is required", field)
		}

		return nil
	}
}
