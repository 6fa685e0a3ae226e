//go:build unit

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConnectAndClose(t *testing.T) {
	t.Parallel()

	server := miniredis.RunT(t)

	connection := NewConnection(Config{Addr: server.Addr()}, zap.NewNop())
	require.NoError(t, connection.Connect(context.Background()))

	// second connect is a no-op
	require.NoError(t, connection.Connect(context.Background()))

	client, err := connection.Client()
	require.NoError(t, err)
	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	require.NoError(t, connection.Close())

	_, err = connection.Client()
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectRequiresAddr(t *testing.T) {
	t.Parallel()

	connection := NewConnection(Config{}, nil)
	require.ErrorIs(t, connection.Connect(context.Background()), ErrAddrRequired)
}

func TestConnectFailsWhenUnreachable(t *testing.T) {
	t.Parallel()

	connection := NewConnection(Config{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		PingTimeout: time.Second,
	}, zap.NewNop())

	require.Error(t, connection.Connect(context.Background()))
}

func TestDefaultConfigNormalize(t *testing.T) {
	t.Parallel()

	config := Config{Addr: "localhost:6379"}
	config.normalize()

	require.Equal(t, 5*time.Second, config.DialTimeout)
	require.Equal(t, 10, config.PoolSize)
}
