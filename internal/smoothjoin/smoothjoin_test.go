package smoothjoin

import (
	"testing"

	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/stretchr/testify/require"
)

func flatHeightmap(n int, ele float64) *heightmap.Map {
	h := heightmap.New(0, 0, 1, n, n, 0)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			h.Set(x, y, ele)
		}
	}
	return h
}

func TestJoinSplicesSharedEndpoints(t *testing.T) {
	a := contour.Polyline{Verts: []contour.Vertex{{X: 0, Y: 0}, {X: 1, Y: 0}}}
	b := contour.Polyline{Verts: []contour.Vertex{{X: 1, Y: 0}, {X: 2, Y: 0}}}
	out := Join([]contour.Polyline{a, b})
	require.Len(t, out, 1)
	require.Len(t, out[0].Verts, 3)
	require.Equal(t, 2.0, out[0].Verts[2].X)
}

func TestJoinClosesRingWhenEndsMeet(t *testing.T) {
	a := contour.Polyline{Verts: []contour.Vertex{{X: 0, Y: 0}, {X: 1, Y: 0}}}
	b := contour.Polyline{Verts: []contour.Vertex{{X: 1, Y: 0}, {X: 1, Y: 1}}}
	c := contour.Polyline{Verts: []contour.Vertex{{X: 1, Y: 1}, {X: 0, Y: 0}}}
	out := Join([]contour.Polyline{a, b, c})
	require.Len(t, out, 1)
	require.True(t, out[0].Closed)
	require.Equal(t, out[0].Verts[0], out[0].Verts[len(out[0].Verts)-1])
}

func TestJoinLeavesLongPolylinesUntouched(t *testing.T) {
	verts := make([]contour.Vertex, 201)
	for i := range verts {
		verts[i] = contour.Vertex{X: float64(i), Y: 0}
	}
	p := contour.Polyline{Verts: verts}
	tail := contour.Polyline{Verts: []contour.Vertex{{X: 200, Y: 0}, {X: 201, Y: 0}}}
	out := Join([]contour.Polyline{p, tail})
	require.Len(t, out, 2)
}

func TestRecoverElevationOnGridAlignedRow(t *testing.T) {
	h := flatHeightmap(5, 6.0) // 6.0 is an exact multiple of the 0.3 interval
	ring := contour.Polyline{Closed: true, Verts: []contour.Vertex{
		{X: 1, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 0}, {X: 1, Y: 0},
	}}
	ele := RecoverElevation(h, ring, 0.3)
	require.InDelta(t, 6.0, ele, 1e-6)
}

func squareRing() contour.Polyline {
	return contour.Polyline{Closed: true, Verts: []contour.Vertex{
		{X: 0, Y: 0}, {X: 0, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 0}, {X: 0, Y: 0},
	}}
}

func TestIsDepressionHigherInteriorWithOddCrossingsIsDepression(t *testing.T) {
	h := flatHeightmap(10, 100.0) // probe samples a flat 100m interior
	ring := squareRing()
	require.True(t, IsDepression(h, ring, 90)) // interior (100) > elevation (90): depression iff crossings odd
}

func TestIsDepressionLowerInteriorWithOddCrossingsIsNotDepression(t *testing.T) {
	h := flatHeightmap(10, 100.0)
	ring := squareRing()
	require.False(t, IsDepression(h, ring, 110)) // interior (100) < elevation (110): depression iff crossings even
}

func TestIsDepressionRejectsOpenPolyline(t *testing.T) {
	h := flatHeightmap(5, 10)
	open := contour.Polyline{Closed: false, Verts: []contour.Vertex{{X: 0, Y: 0}, {X: 1, Y: 1}}}
	require.False(t, IsDepression(h, open, 10))
}

func TestExtractDotKnollsPeelsSmallRings(t *testing.T) {
	h := flatHeightmap(10, 50.0)
	steep := steepness.Compute(h, 2)
	var verts []contour.Vertex
	for i := 0; i < 10; i++ {
		verts = append(verts, contour.Vertex{X: float64(i) * 0.1, Y: 0})
	}
	verts = append(verts, verts[0])
	ring := contour.Polyline{Closed: true, Verts: verts}
	opt := Options{Interval: 0.3, ScaleFactor: 1, InitialDotKnolls: 1}
	survivors, dots := ExtractDotKnolls(h, steep, []contour.Polyline{ring}, opt.Interval, opt)
	require.Empty(t, survivors)
	require.Len(t, dots, 1)
	require.Equal(t, LayerDotKnoll, dots[0].Layer)
}

func TestExtractDotKnollsKeepsLargeRingsAsPolylines(t *testing.T) {
	h := flatHeightmap(30, 50.0)
	steep := steepness.Compute(h, 2)
	var verts []contour.Vertex
	for i := 0; i < 20; i++ {
		verts = append(verts, contour.Vertex{X: float64(i), Y: 0})
	}
	ring := contour.Polyline{Closed: false, Verts: verts}
	opt := Options{Interval: 0.3, ScaleFactor: 1, InitialDotKnolls: 1}
	survivors, dots := ExtractDotKnolls(h, steep, []contour.Polyline{ring}, opt.Interval, opt)
	require.Len(t, survivors, 1)
	require.Empty(t, dots)
}

func TestAdaptiveThinKeepsShortPolylinesUnchanged(t *testing.T) {
	h := flatHeightmap(5, 10)
	steep := steepness.Compute(h, 2)
	verts := make([]contour.Vertex, 10)
	for i := range verts {
		verts[i] = contour.Vertex{X: float64(i), Y: 0}
	}
	p := contour.Polyline{Verts: verts}
	out := AdaptiveThin(p, steep, h)
	require.Equal(t, p, out)
}

func TestAdaptiveThinDropsFlatCloselySpacedVertices(t *testing.T) {
	h := flatHeightmap(200, 10) // perfectly flat: steepness is 0 everywhere
	steep := steepness.Compute(h, 2)
	verts := make([]contour.Vertex, 150)
	for i := range verts {
		verts[i] = contour.Vertex{X: float64(i) * 0.1, Y: 0}
	}
	p := contour.Polyline{Verts: verts}
	out := AdaptiveThin(p, steep, h)
	require.Less(t, len(out.Verts), len(p.Verts))
	require.Equal(t, p.Verts[0], out.Verts[0])
	require.Equal(t, p.Verts[len(p.Verts)-1], out.Verts[len(out.Verts)-1])
}

func TestSmoothPreservesClosedRingFirstLastVertex(t *testing.T) {
	verts := []contour.Vertex{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 0}, {X: 1, Y: -1}, {X: 0, Y: 0}}
	p := contour.Polyline{Closed: true, Verts: verts}
	out := Smooth(p, 0.5, 0)
	require.Equal(t, out.Verts[0], out.Verts[len(out.Verts)-1])
}

func TestSmoothLeavesStraightLineUnchanged(t *testing.T) {
	verts := make([]contour.Vertex, 9)
	for i := range verts {
		verts[i] = contour.Vertex{X: float64(i), Y: 0}
	}
	p := contour.Polyline{Verts: verts}
	out := Smooth(p, 1, 0)
	for i, v := range out.Verts {
		require.InDelta(t, verts[i].X, v.X, 1e-9)
		require.InDelta(t, verts[i].Y, v.Y, 1e-9)
	}
}

func TestClassifyIndexContour(t *testing.T) {
	opt := Options{IndexContours: 5, Interval: 1}
	require.Equal(t, LayerIndex, Classify(10, false, opt))
}

func TestClassifyDepressionOverridesIndex(t *testing.T) {
	opt := Options{IndexContours: 5, Interval: 1}
	require.Equal(t, LayerDepression, Classify(10, true, opt))
}

func TestClassifyFormlineIntermediate(t *testing.T) {
	opt := Options{IndexContours: 100, Interval: 1, FormlineEnabled: true}
	require.Equal(t, LayerIntermed, Classify(3, false, opt))
}

func TestClassifyPlainContour(t *testing.T) {
	opt := Options{IndexContours: 100, Interval: 1, FormlineEnabled: false}
	require.Equal(t, LayerContour, Classify(3, false, opt))
}

func TestKnollFidelityGuardKeepsLongRings(t *testing.T) {
	verts := make([]contour.Vertex, 41)
	p := contour.Polyline{Closed: true, Verts: verts}
	h := flatHeightmap(5, 10)
	steep := steepness.Compute(h, 2)
	require.True(t, KnollFidelityGuard(p, h, steep, Options{ScaleFactor: 1, InitialDotKnolls: 1}))
}

func TestKnollFidelityGuardDropsShallowSteppedNoiseRing(t *testing.T) {
	// A broad, gentle 0.6m step: the ring's bounding box spans both
	// levels (spread 0.6 exceeds the 0.45 threshold) but no single 5x5
	// window sees more than that 0.6m of relief, so it never counts as a
	// "steep" sample under the 1.0 cutoff.
	h := heightmap.New(0, 0, 1, 10, 10, 0)
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			if x < 5 {
				h.Set(x, y, 10.0)
			} else {
				h.Set(x, y, 10.6)
			}
		}
	}
	steep := steepness.Compute(h, 2)
	verts := []contour.Vertex{{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 4}}
	p := contour.Polyline{Closed: true, Verts: verts}
	require.False(t, KnollFidelityGuard(p, h, steep, Options{ScaleFactor: 1, InitialDotKnolls: 1}))
}

func TestProcessAssignsContourLayerToOpenPolyline(t *testing.T) {
	h := flatHeightmap(21, 50.0)
	steep := steepness.Compute(h, 2)
	low := contour.Polyline{Verts: []contour.Vertex{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 10, Y: 5}}}
	opt := Options{Interval: 0.3, ScaleFactor: 1, InitialDotKnolls: 1}
	features := Process(h, steep, []contour.Polyline{low}, opt)
	require.Len(t, features, 1)
	require.Equal(t, LayerContour, features[0].Layer)
}
