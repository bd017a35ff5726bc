package dxfio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterEmitsCRLF(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header(0, 0, 10, 10)
	w.Polyline("contour", []Vertex2D{{X: 0, Y: 0, Elevation: 100}, {X: 1, Y: 1, Elevation: 100}}, false)
	require.NoError(t, w.Close())

	out := buf.String()
	require.Contains(t, out, "\r\n")
	require.NotContains(t, strings.ReplaceAll(out, "\r\n", ""), "\n")
	require.Contains(t, out, "POLYLINE")
	require.Contains(t, out, "VERTEX")
	require.Contains(t, out, "SEQEND")
	require.Contains(t, out, "$EXTMIN")
	require.Contains(t, out, "$EXTMAX")
}

func TestPolylineClosedFlag(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header(0, 0, 1, 1)
	w.Polyline("knoll", []Vertex2D{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 0}}, true)
	require.NoError(t, w.Close())
	require.Contains(t, buf.String(), " 70\r\n1\r\n")
}

func TestPointEntity(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Header(0, 0, 1, 1)
	w.Point("pins", 5, 6, 0)
	require.NoError(t, w.Close())
	require.Contains(t, buf.String(), "POINT")
}
