//go:build unit

package backoff

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Second, Exponential(time.Second, 0))
	require.Equal(t, 2*time.Second, Exponential(time.Second, 1))
	require.Equal(t, 8*time.Second, Exponential(time.Second, 3))
	require.Equal(t, time.Second, Exponential(time.Second, -5))
	require.Equal(t, time.Duration(0), Exponential(0, 3))
	require.Equal(t, time.Duration(math.MaxInt64), Exponential(time.Hour, 62))
}

func TestExponentialCapped(t *testing.T) {
	t.Parallel()

	require.Equal(t, 4*time.Second, ExponentialCapped(time.Second, 2, time.Minute))
	require.Equal(t, time.Minute, ExponentialCapped(time.Second, 10, time.Minute))
	require.Equal(t, 1024*time.Second, ExponentialCapped(time.Second, 10, 0))
}

func TestExponentialMonotonic(t *testing.T) {
	t.Parallel()

	for attempt := 0; attempt < 6; attempt++ {
		current := ExponentialCapped(time.Second, attempt, time.Minute)
		next := ExponentialCapped(time.Second, attempt+1, time.Minute)
		require.LessOrEqual(t, current, next)
		require.LessOrEqual(t, next, time.Minute)
	}
}

func TestFullJitter(t *testing.T) {
	t.Parallel()

	require.Equal(t, time.Duration(0), FullJitter(0))
	require.Equal(t, time.Duration(0), FullJitter(-time.Second))

	for i := 0; i < 100; i++ {
		jittered := FullJitter(time.Second)
		require.GreaterOrEqual(t, jittered, time.Duration(0))
		require.Less(t, jittered, time.Second)
	}
}

func TestExponentialWithJitter(t *testing.T) {
	t.Parallel()

	for i := 0; i < 100; i++ {
		jittered := ExponentialWithJitter(time.Second, 2)
		require.GreaterOrEqual(t, jittered, time.Duration(0))
		require.Less(t, jittered, 4*time.Second)
	}
}

func TestSleepCompletes(t *testing.T) {
	t.Parallel()

	require.NoError(t, Sleep(context.Background(), time.Millisecond))
	require.NoError(t, Sleep(context.Background(), 0))
	require.NoError(t, Sleep(context.Background(), -time.Second))
}

func TestSleepCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Minute)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}
