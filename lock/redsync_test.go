//go:build unit

package lock

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedsyncManager(t *testing.T) *Redsync {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager, err := NewRedsync(client, nil)
	require.NoError(t, err)

	return manager
}

func TestNewRedsyncRequiresClient(t *testing.T) {
	t.Parallel()

	manager, err := NewRedsync(nil, nil)
	require.ErrorIs(t, err, ErrClientRequired)
	require.Nil(t, manager)
}

func TestRedsyncValidatesArguments(t *testing.T) {
	t.Parallel()

	manager := newRedsyncManager(t)

	err := manager.WithLock(context.Background(), "", func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrKeyRequired)

	err = manager.WithLock(context.Background(), "key", nil)
	require.ErrorIs(t, err, ErrFnRequired)
}

func TestRedsyncSerializesSameKey(t *testing.T) {
	t.Parallel()

	manager := newRedsyncManager(t)
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := manager.WithLock(context.Background(), "saga:1", func(context.Context) error {
				counter++
				return nil
			})
			require.NoError(t, err)
		}()
	}

	wg.Wait()
	require.Equal(t, 10, counter)
}
