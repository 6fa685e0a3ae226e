//go:build unit

package lock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalValidatesArguments(t *testing.T) {
	t.Parallel()

	l := NewLocal()

	err := l.WithLock(context.Background(), "", func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrKeyRequired)

	err = l.WithLock(context.Background(), "key", nil)
	require.ErrorIs(t, err, ErrFnRequired)
}

func TestLocalSerializesSameKey(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := l.WithLock(context.Background(), "saga:1", func(context.Context) error {
				counter++
				return nil
			})
			require.NoError(t, err)
		}()
	}

	wg.Wait()
	require.Equal(t, 100, counter)
}

func TestLocalPropagatesFnError(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	boom := errors.New("boom")

	err := l.WithLock(context.Background(), "saga:1", func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestLocalReleasesEntries(t *testing.T) {
	t.Parallel()

	l := NewLocal()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.WithLock(context.Background(), "saga:1", func(context.Context) error { return nil }))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Empty(t, l.entries)
}

func TestLocalRespectsCancelledContext(t *testing.T) {
	t.Parallel()

	l := NewLocal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.WithLock(ctx, "saga:1", func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.Canceled)
}
