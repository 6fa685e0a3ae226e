//go:build unit

package booking

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeComposition(t *testing.T) {
	t.Parallel()

	require.True(t, TypeFlight.HasFlight())
	require.False(t, TypeFlight.HasHotel())
	require.True(t, TypeHotel.HasHotel())
	require.False(t, TypeHotel.HasFlight())
	require.True(t, TypeCombo.HasFlight())
	require.True(t, TypeCombo.HasHotel())
}

func TestTypeIsValid(t *testing.T) {
	t.Parallel()

	require.True(t, TypeFlight.IsValid())
	require.True(t, TypeHotel.IsValid())
	require.True(t, TypeCombo.IsValid())
	require.False(t, Type("CRUISE").IsValid())
	require.False(t, Type("").IsValid())
}

func TestNewConfirmationCode(t *testing.T) {
	t.Parallel()

	code := NewConfirmationCode()
	require.True(t, strings.HasPrefix(code, "CNF-"))
	require.Len(t, code, len("CNF-")+10)
	require.NotEqual(t, code, NewConfirmationCode())
}
