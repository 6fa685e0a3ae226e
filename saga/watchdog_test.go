//go:build unit

package saga

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/booking"
	"github.com/pdh-travel/booking-saga/command"
)

func stuckInstance(t *testing.T, env *testEnv, state State, age time.Duration) *Instance {
	t.Helper()

	instance := NewInstance(env.bookingID)
	instance.CurrentState = state
	instance.UpdatedAt = time.Now().UTC().Add(-age)

	require.NoError(t, env.store.Create(context.Background(), instance, nil))

	return instance
}

func TestWatchdogRedispatchesStuckPendingCommand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, booking.TypeCombo)
	stuckInstance(t, env, StateHotelReservationPending, time.Hour)

	watchdog, err := NewWatchdog(env.orchestrator, zap.NewNop(),
		WithStuckThreshold(10*time.Minute))
	require.NoError(t, err)

	require.Equal(t, 1, watchdog.SweepOnce(ctx))
	env.orchestrator.Drain()

	// a timeout is retryable, so the pending command goes out again
	require.Equal(t, StateHotelReservationPending, env.state(t))

	commands := env.outboxCommands(t)
	require.Len(t, commands, 1)
	require.Equal(t, command.ActionReserveHotel, commands[0].Action)
	require.Equal(t, 1, commands[0].RetryCount)
}

func TestWatchdogRedispatchesStuckCompensationCommand(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, booking.TypeCombo)
	stuckInstance(t, env, StateCompensationFlightCancel, time.Hour)

	watchdog, err := NewWatchdog(env.orchestrator, zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, 1, watchdog.SweepOnce(ctx))
	env.orchestrator.Drain()

	require.Equal(t, StateCompensationFlightCancel, env.state(t))

	commands := env.outboxCommands(t)
	require.Len(t, commands, 1)
	require.Equal(t, command.ActionCancelFlight, commands[0].Action)
	require.True(t, commands[0].IsCompensation())
}

func ageSaga(t *testing.T, env *testEnv, age time.Duration) {
	t.Helper()

	instance, err := env.store.FindByBookingID(context.Background(), env.bookingID)
	require.NoError(t, err)

	instance.UpdatedAt = time.Now().UTC().Add(-age)
	require.NoError(t, env.store.Save(context.Background(), instance, nil))
}

func TestWatchdogEscalatesToCompensationAfterRepeatedSweeps(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, booking.TypeCombo)
	stuckInstance(t, env, StateFlightReservationPending, time.Hour)

	watchdog, err := NewWatchdog(env.orchestrator, zap.NewNop())
	require.NoError(t, err)

	// each sweep re-dispatches with a growing retry count and touches the
	// saga, so the next sweep only sees it after it goes stale again
	for i := 0; i < 3; i++ {
		require.Equal(t, 1, watchdog.SweepOnce(ctx))
		env.orchestrator.Drain()
		require.Equal(t, StateFlightReservationPending, env.state(t))
		require.Zero(t, watchdog.SweepOnce(ctx))

		ageSaga(t, env, time.Hour)
	}

	retries := make([]int, 0, 3)
	for _, cmd := range env.outboxCommands(t) {
		if cmd.Action == command.ActionReserveFlight {
			retries = append(retries, cmd.RetryCount)
		}
	}
	require.Equal(t, []int{1, 2, 3}, retries)

	// the retry budget is spent, the fourth sweep compensates
	require.Equal(t, 1, watchdog.SweepOnce(ctx))
	env.orchestrator.Drain()

	require.Equal(t, StateBookingCancelled, env.state(t))

	_, reason, cancelled := env.bookings.cancellationFor(env.bookingID)
	require.True(t, cancelled)
	require.Equal(t, "saga timed out waiting for downstream event", reason)
}

func TestWatchdogIgnoresFreshAndTerminalSagas(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, booking.TypeCombo)

	// fresh saga, recently touched
	_, err := env.orchestrator.StartSaga(ctx, env.bookingID)
	require.NoError(t, err)

	// terminal saga for another booking, stale but finished
	terminal := NewInstance(uuid.New())
	terminal.CurrentState = StateBookingCancelled
	terminal.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, env.store.Create(ctx, terminal, nil))

	watchdog, err := NewWatchdog(env.orchestrator, zap.NewNop())
	require.NoError(t, err)

	require.Zero(t, watchdog.SweepOnce(ctx))
}

func TestNewWatchdogRequiresOrchestrator(t *testing.T) {
	t.Parallel()

	_, err := NewWatchdog(nil, zap.NewNop())
	require.Error(t, err)
}
