package saga

// State is the position of a saga in its lifecycle.
type State string

const (
	StateBookingInitiated         State = "BOOKING_INITIATED"
	StateFlightReservationPending State = "FLIGHT_RESERVATION_PENDING"
	StateFlightReserved           State = "FLIGHT_RESERVED"
	StateHotelReservationPending  State = "HOTEL_RESERVATION_PENDING"
	StateHotelReserved            State = "HOTEL_RESERVED"
	StatePaymentPending           State = "PAYMENT_PENDING"
	StatePaymentCompleted         State = "PAYMENT_COMPLETED"
	StateBookingCompleted         State = "BOOKING_COMPLETED"

	StateCompensationPaymentRefund State = "COMPENSATION_PAYMENT_REFUND"
	StateCompensationHotelCancel   State = "COMPENSATION_HOTEL_CANCEL"
	StateCompensationFlightCancel  State = "COMPENSATION_FLIGHT_CANCEL"
	StateCompensationBookingCancel State = "COMPENSATION_BOOKING_CANCEL"
	StateBookingCancelled          State = "BOOKING_CANCELLED"
)

// transitions is the legal-transition table. It is built once and never
// mutated; every state change is checked against it before being applied.
var transitions = map[State]map[State]struct{}{
	StateBookingInitiated: stateSet(
		StateFlightReservationPending,
		StateHotelReservationPending,
		StatePaymentPending,
		StateCompensationBookingCancel,
	),
	StateFlightReservationPending: stateSet(
		StateFlightReserved,
		StateCompensationBookingCancel,
	),
	StateFlightReserved: stateSet(
		StateHotelReservationPending,
		StatePaymentPending,
		StateCompensationFlightCancel,
	),
	StateHotelReservationPending: stateSet(
		StateHotelReserved,
		StateCompensationFlightCancel,
		StateCompensationBookingCancel,
	),
	StateHotelReserved: stateSet(
		StatePaymentPending,
		StateCompensationHotelCancel,
	),
	StatePaymentPending: stateSet(
		StatePaymentCompleted,
		StateCompensationHotelCancel,
		StateCompensationFlightCancel,
		StateCompensationBookingCancel,
	),
	StatePaymentCompleted: stateSet(
		StateBookingCompleted,
		StateCompensationPaymentRefund,
	),
	StateCompensationPaymentRefund: stateSet(
		StateCompensationHotelCancel,
		StateCompensationFlightCancel,
		StateCompensationBookingCancel,
	),
	StateCompensationHotelCancel: stateSet(
		StateCompensationFlightCancel,
		StateCompensationBookingCancel,
	),
	StateCompensationFlightCancel: stateSet(
		StateCompensationBookingCancel,
	),
	StateCompensationBookingCancel: stateSet(
		StateBookingCancelled,
	),
	StateBookingCompleted: {},
	StateBookingCancelled: {},
}

func stateSet(states ...State) map[State]struct{} {
	set := make(map[State]struct{}, len(states))
	for _, state := range states {
		set[state] = struct{}{}
	}

	return set
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}

	_, ok = next[to]

	return ok
}

// IsValid reports whether the state is part of the lifecycle.
func (state State) IsValid() bool {
	_, ok := transitions[state]

	return ok
}

// IsTerminal reports whether the saga can never leave this state.
func (state State) IsTerminal() bool {
	return state == StateBookingCompleted || state == StateBookingCancelled
}

// IsCompensation reports whether the state is on the rollback branch.
func (state State) IsCompensation() bool {
	switch state {
	case StateCompensationPaymentRefund,
		StateCompensationHotelCancel,
		StateCompensationFlightCancel,
		StateCompensationBookingCancel:
		return true
	}

	return false
}
