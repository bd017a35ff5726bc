package heightmap

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	m := New(10, 20, 0.5, 4, 3, 0)
	for x := 0; x < m.W; x++ {
		for y := 0; y < m.H; y++ {
			m.Set(x, y, float64(x)*10+float64(y))
		}
	}

	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))

	got, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, m.XOffset, got.XOffset)
	require.Equal(t, m.YOffset, got.YOffset)
	require.Equal(t, m.Scale, got.Scale)
	require.Equal(t, m.W, got.W)
	require.Equal(t, m.H, got.H)
	for x := 0; x < m.W; x++ {
		for y := 0; y < m.H; y++ {
			require.Equal(t, m.At(x, y), got.At(x, y))
		}
	}
}

func TestHasNaN(t *testing.T) {
	m := New(0, 0, 1, 2, 2, 0)
	require.False(t, m.HasNaN())
	m.Set(0, 0, math.NaN())
	require.True(t, m.HasNaN())
}

func TestCloneIsIndependent(t *testing.T) {
	m := New(0, 0, 1, 2, 2, 5)
	clone := m.Clone()
	clone.Set(0, 0, 99)
	require.Equal(t, 5.0, m.At(0, 0))
	require.Equal(t, 99.0, clone.At(0, 0))
}

func TestIndexOutOfBoundsPanics(t *testing.T) {
	m := New(0, 0, 1, 2, 2, 0)
	require.Panics(t, func() { m.At(2, 0) })
	require.Panics(t, func() { m.At(0, -1) })
}

func TestBilinearAtFlatPlane(t *testing.T) {
	m := New(0, 0, 1, 3, 3, 7)
	require.InDelta(t, 7.0, m.BilinearAt(1.3, 0.6), 1e-9)
}

func TestBilinearAtInterpolatesBetweenCells(t *testing.T) {
	m := New(0, 0, 1, 2, 2, 0)
	m.Set(0, 0, 0)
	m.Set(1, 0, 10)
	m.Set(0, 1, 0)
	m.Set(1, 1, 10)
	require.InDelta(t, 5.0, m.BilinearAt(0.5, 0.5), 1e-9)
}

func TestBilinearAtClampsOutOfRange(t *testing.T) {
	m := New(0, 0, 1, 2, 2, 3)
	require.InDelta(t, 3.0, m.BilinearAt(-5, -5), 1e-9)
	require.InDelta(t, 3.0, m.BilinearAt(50, 50), 1e-9)
}
