//go:build unit

package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryMarkAndCheckProcessed(t *testing.T) {
	t.Parallel()

	d := NewMemoryDeduplicator(nil)
	defer d.Close()

	ctx := context.Background()

	processed, err := d.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, processed)

	require.NoError(t, d.MarkProcessed(ctx, "evt-1", time.Minute))

	processed, err = d.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestMemoryMarkerExpires(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	clock := func() time.Time { return now }

	d := NewMemoryDeduplicator(nil, WithClock(func() time.Time { return clock() }))
	defer d.Close()

	ctx := context.Background()
	require.NoError(t, d.MarkProcessed(ctx, "evt-1", time.Minute))

	clock = func() time.Time { return now.Add(2 * time.Minute) }

	processed, err := d.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, processed)
}

func TestMemoryLiveMarkerKeepsOriginalExpiry(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	clock := func() time.Time { return now }

	d := NewMemoryDeduplicator(nil, WithClock(func() time.Time { return clock() }))
	defer d.Close()

	ctx := context.Background()
	require.NoError(t, d.MarkProcessed(ctx, "evt-1", time.Minute))

	clock = func() time.Time { return now.Add(30 * time.Second) }
	require.NoError(t, d.MarkProcessed(ctx, "evt-1", time.Hour))

	clock = func() time.Time { return now.Add(75 * time.Second) }

	processed, err := d.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, processed)
}

func TestMemorySelfEventNamespaceIsolated(t *testing.T) {
	t.Parallel()

	d := NewMemoryDeduplicator(nil)
	defer d.Close()

	ctx := context.Background()
	require.NoError(t, d.MarkSelfProcessed(ctx, "booking-saga", "evt-1", time.Minute))

	selfProcessed, err := d.IsSelfProcessed(ctx, "booking-saga", "evt-1")
	require.NoError(t, err)
	require.True(t, selfProcessed)

	processed, err := d.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, processed)
}

func TestMemoryAttemptsCapPoisonMessages(t *testing.T) {
	t.Parallel()

	d := NewMemoryDeduplicator(nil)
	defer d.Close()

	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		attempts, err := d.IncrementAttempts(ctx, "poison")
		require.NoError(t, err)
		require.Equal(t, i, attempts)
	}

	ok, err := d.ShouldAttemptProcessing(ctx, "poison", 3)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = d.ShouldAttemptProcessing(ctx, "fresh", 3)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryIncrementAttemptsConcurrent(t *testing.T) {
	t.Parallel()

	d := NewMemoryDeduplicator(nil)
	defer d.Close()

	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := d.IncrementAttempts(ctx, "evt-1")
			require.NoError(t, err)
		}()
	}

	wg.Wait()

	attempts, err := d.ProcessingAttempts(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, 50, attempts)
}

func TestMemorySweepRemovesExpired(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	var mu sync.Mutex
	current := now

	d := NewMemoryDeduplicator(nil,
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return current
		}),
		WithSweepInterval(10*time.Millisecond),
	)
	defer d.Close()

	ctx := context.Background()
	require.NoError(t, d.MarkProcessed(ctx, "evt-1", time.Minute))

	mu.Lock()
	current = now.Add(2 * time.Minute)
	mu.Unlock()

	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		_, exists := d.processed[processedKey("evt-1")]
		return !exists
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryRemove(t *testing.T) {
	t.Parallel()

	d := NewMemoryDeduplicator(nil)
	defer d.Close()

	ctx := context.Background()
	require.NoError(t, d.MarkProcessed(ctx, "evt-1", time.Minute))
	_, err := d.IncrementAttempts(ctx, "evt-1")
	require.NoError(t, err)

	require.NoError(t, d.Remove(ctx, "evt-1"))

	processed, err := d.IsProcessed(ctx, "evt-1")
	require.NoError(t, err)
	require.False(t, processed)

	attempts, err := d.ProcessingAttempts(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, 0, attempts)
}
