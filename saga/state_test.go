//go:build unit

package saga

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionTableIsClosed(t *testing.T) {
	t.Parallel()

	for from, nexts := range transitions {
		for to := range nexts {
			require.True(t, to.IsValid(), "transition %s -> %s targets an unknown state", from, to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	t.Parallel()

	for _, terminal := range []State{StateBookingCompleted, StateBookingCancelled} {
		require.True(t, terminal.IsTerminal())
		require.Empty(t, transitions[terminal])

		for other := range transitions {
			require.False(t, CanTransition(terminal, other),
				"terminal state %s must not transition to %s", terminal, other)
		}
	}
}

func TestCanTransitionHappyPath(t *testing.T) {
	t.Parallel()

	path := []State{
		StateBookingInitiated,
		StateFlightReservationPending,
		StateFlightReserved,
		StateHotelReservationPending,
		StateHotelReserved,
		StatePaymentPending,
		StatePaymentCompleted,
		StateBookingCompleted,
	}

	for i := 0; i < len(path)-1; i++ {
		require.True(t, CanTransition(path[i], path[i+1]),
			"%s -> %s must be legal", path[i], path[i+1])
	}
}

func TestCanTransitionCompensationChain(t *testing.T) {
	t.Parallel()

	chain := []State{
		StateCompensationPaymentRefund,
		StateCompensationHotelCancel,
		StateCompensationFlightCancel,
		StateCompensationBookingCancel,
		StateBookingCancelled,
	}

	for i := 0; i < len(chain)-1; i++ {
		require.True(t, CanTransition(chain[i], chain[i+1]),
			"%s -> %s must be legal", chain[i], chain[i+1])
	}
}

func TestCanTransitionRejectsSkipsAndReversals(t *testing.T) {
	t.Parallel()

	require.False(t, CanTransition(StateBookingInitiated, StateBookingCompleted))
	require.False(t, CanTransition(StateFlightReservationPending, StatePaymentPending))
	require.False(t, CanTransition(StateFlightReserved, StateBookingInitiated))
	require.False(t, CanTransition(StatePaymentCompleted, StatePaymentPending))
	require.False(t, CanTransition(StateCompensationBookingCancel, StateCompensationFlightCancel))
	require.False(t, CanTransition("NOT_A_STATE", StateBookingCompleted))
}

func TestIsCompensation(t *testing.T) {
	t.Parallel()

	require.True(t, StateCompensationPaymentRefund.IsCompensation())
	require.True(t, StateCompensationBookingCancel.IsCompensation())
	require.False(t, StatePaymentPending.IsCompensation())
	require.False(t, StateBookingCancelled.IsCompensation())
}
