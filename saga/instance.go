package saga

import (
	"time"

	"github.com/google/uuid"
)

// Instance is one saga, one per booking attempt. Terminal instances are
// retained for audit and idempotent replay, never deleted.
type Instance struct {
	SagaID             string    `json:"sagaId"`
	BookingID          uuid.UUID `json:"bookingId"`
	CurrentState       State     `json:"currentState"`
	CompensationReason string    `json:"compensationReason,omitempty"`
	FailureCode        string    `json:"failureCode,omitempty"`

	// TimeoutRetries counts watchdog-triggered re-dispatches, feeding the
	// compensation policy so a saga stuck across sweeps eventually
	// escalates instead of retrying forever.
	TimeoutRetries int       `json:"timeoutRetries,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewInstance creates a saga in its initial state.
func NewInstance(bookingID uuid.UUID) *Instance {
	now := time.Now().UTC()

	return &Instance{
		SagaID:       "saga-" + uuid.NewString(),
		BookingID:    bookingID,
		CurrentState: StateBookingInitiated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TransitionTo applies a state change after checking it against the
// transition table.
func (instance *Instance) TransitionTo(next State) error {
	if !CanTransition(instance.CurrentState, next) {
		return ErrInvalidTransition
	}

	instance.CurrentState = next
	instance.UpdatedAt = time.Now().UTC()

	return nil
}

// IsTerminal reports whether the saga has finished.
func (instance *Instance) IsTerminal() bool {
	return instance.CurrentState.IsTerminal()
}

// Clone returns a copy so stores can hand out instances without sharing
// mutable state.
func (instance *Instance) Clone() *Instance {
	clone := *instance

	return &clone
}
