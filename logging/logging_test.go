//go:build unit

package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, level, err := New(Config{
		Environment: EnvironmentProduction,
		ServiceName: "booking-saga",
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	require.Equal(t, zapcore.InfoLevel, level.Level())
}

func TestNewRespectsLevelOverride(t *testing.T) {
	t.Parallel()

	logger, level, err := New(Config{
		Environment: EnvironmentProduction,
		Level:       "warn",
	})
	require.NoError(t, err)
	require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	require.Equal(t, zapcore.WarnLevel, level.Level())

	// the handle adjusts the running logger
	level.SetLevel(zapcore.DebugLevel)
	require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, _, err := New(Config{Environment: "qa"})
	require.Error(t, err)

	_, _, err = New(Config{Environment: EnvironmentLocal, Level: "loud"})
	require.Error(t, err)
}
