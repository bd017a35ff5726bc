package stageerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWrapsAndUnwraps(t *testing.T) {
	base := errors.New("boom")
	err := New("rasterize", IO, base)
	require.ErrorIs(t, err, base)
	require.Contains(t, err.Error(), "rasterize")
	require.Contains(t, err.Error(), "io")
}

func TestNewAtCarriesCoord(t *testing.T) {
	base := errors.New("nan cell")
	err := New("rasterize", InvariantViolated, base)
	require.Contains(t, err.Error(), "invariant_violated")

	atErr := NewAt("rasterize", 12.5, -3.25, base)
	require.Contains(t, atErr.Error(), "12.500")
	require.Contains(t, atErr.Error(), "-3.250")
}

func TestNewNilErrReturnsNil(t *testing.T) {
	require.Nil(t, New("x", Config, nil))
	require.Nil(t, NewAt("x", 0, 0, nil))
}
