package knoll

import (
	"testing"

	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/stretchr/testify/require"
)

func squarePolyline(x0, y0, x1, y1 float64, closed bool) contour.Polyline {
	verts := []contour.Vertex{
		{X: x0, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1}, {X: x1, Y: y0},
	}
	if closed {
		verts = append(verts, verts[0])
	}
	return contour.Polyline{Verts: verts, Closed: closed}
}

func TestRingsFromLevelsFiltersByVertexCount(t *testing.T) {
	small := squarePolyline(0, 0, 1, 1, true) // 5 verts, below minRingVerts
	var big []contour.Vertex
	for i := 0; i < 15; i++ {
		big = append(big, contour.Vertex{X: float64(i), Y: 0})
	}
	mid := contour.Polyline{Verts: big, Closed: true}
	open := squarePolyline(0, 0, 1, 1, false)

	levels := map[float64][]contour.Polyline{
		10: {small, mid},
		20: {open},
	}
	rings := RingsFromLevels(levels)
	require.Len(t, rings, 1)
	require.Equal(t, 10.0, rings[0].Elevation)
	require.Len(t, rings[0].Verts, 15)
}

func TestClassifyFindsTopAndNestedCandidate(t *testing.T) {
	top := Ring{Verts: squarePolyline(0, 0, 10, 10, true).Verts, Elevation: 20, CentroidX: 5, CentroidY: 5}
	candidate := Ring{Verts: squarePolyline(2, 2, 8, 8, true).Verts, Elevation: 19.5, CentroidX: 5, CentroidY: 5}
	outsider := Ring{Verts: squarePolyline(100, 100, 110, 110, true).Verts, Elevation: 18, CentroidX: 105, CentroidY: 105}

	tops, candidates := Classify([]Ring{top, candidate, outsider})

	require.Len(t, tops, 2) // top and outsider: neither is enclosed by a higher ring
	require.Len(t, candidates, 1)
	require.Equal(t, candidate.Elevation, candidates[0].Ring.Elevation)
	require.Equal(t, top.Elevation, candidates[0].Top.Elevation)
}

func TestClassifyRejectsCandidateOutOfDropRange(t *testing.T) {
	top := Ring{Verts: squarePolyline(0, 0, 10, 10, true).Verts, Elevation: 20, CentroidX: 5, CentroidY: 5}
	tooClose := Ring{Verts: squarePolyline(2, 2, 8, 8, true).Verts, Elevation: 19.95, CentroidX: 5, CentroidY: 5} // drop 0.05 < 0.1
	tooFar := Ring{Verts: squarePolyline(2, 2, 8, 8, true).Verts, Elevation: 14, CentroidX: 5, CentroidY: 5}      // drop 6.0 > 4.6

	_, candidates := Classify([]Ring{top, tooClose, tooFar})
	require.Empty(t, candidates)
}

func TestSelectPinsKeepsFirstPickNearTopMinusSixTenths(t *testing.T) {
	top := Ring{Verts: squarePolyline(0, 0, 10, 10, true).Verts, Elevation: 20, CentroidX: 5, CentroidY: 5}
	first := Candidate{Ring: Ring{CentroidX: 1, CentroidY: 1, Elevation: 19.45}, Top: top}
	better := Candidate{Ring: Ring{CentroidX: 2, CentroidY: 2, Elevation: 19.9}, Top: top}

	pins := SelectPins([]Ring{top}, []Candidate{first, better}, 1.25)
	require.Len(t, pins, 1)
	require.Equal(t, first.Ring.Elevation, pins[0].Elevation, "the tie-break should keep the already-close first pick rather than flip-flop")
}

func TestSelectPinsProducesOnePinPerTop(t *testing.T) {
	top1 := Ring{Verts: squarePolyline(0, 0, 10, 10, true).Verts, Elevation: 20, CentroidX: 5, CentroidY: 5}
	top2 := Ring{Verts: squarePolyline(100, 100, 110, 110, true).Verts, Elevation: 30, CentroidX: 105, CentroidY: 105}
	c1 := Candidate{Ring: Ring{CentroidX: 5, CentroidY: 5, Elevation: 19.5}, Top: top1}
	c2 := Candidate{Ring: Ring{CentroidX: 105, CentroidY: 105, Elevation: 29.5}, Top: top2}

	pins := SelectPins([]Ring{top1, top2}, []Candidate{c1, c2}, 1.0)
	require.Len(t, pins, 2)
}

func flatHeightmap(n int, ele float64) *heightmap.Map {
	h := heightmap.New(0, 0, 1, n, n, 0)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			h.Set(x, y, ele)
		}
	}
	return h
}

func TestDeformRaisesCellsInsideRing(t *testing.T) {
	h := flatHeightmap(20, 10.0)
	steep := steepness.Compute(h, 2)
	ring := Ring{Verts: squarePolyline(5, 5, 9, 9, true).Verts, Elevation: 10, CentroidX: 7, CentroidY: 7}
	pin := Pin{X: 7, Y: 7, Elevation: 10, Ring: ring}

	out := knollDeformSingle(h, pin, steep, 2.5)
	require.GreaterOrEqual(t, out.At(7, 7), h.At(7, 7), "a cell strictly inside the pin's ring must not drop in elevation")
}

// knollDeformSingle is a small test helper wrapping Deform for a single pin,
// keeping the monotonicity property (spec.md §8 invariant 5) easy to check
// per-pin without constructing a full pipeline run.
func knollDeformSingle(h *heightmap.Map, pin Pin, steep *steepness.Field, interval float64) *heightmap.Map {
	return Deform(h, []Pin{pin}, steep, interval)
}

func TestDeformIsNonMutatingOnInput(t *testing.T) {
	h := flatHeightmap(20, 10.0)
	steep := steepness.Compute(h, 2)
	ring := Ring{Verts: squarePolyline(5, 5, 9, 9, true).Verts, Elevation: 10, CentroidX: 7, CentroidY: 7}
	pin := Pin{X: 7, Y: 7, Elevation: 10, Ring: ring}

	before := h.At(7, 7)
	_ = Deform(h, []Pin{pin}, steep, 2.5)
	require.Equal(t, before, h.At(7, 7), "Deform must never mutate its input heightmap")
}

func TestDeformWithNoPinsReturnsEquivalentMap(t *testing.T) {
	h := flatHeightmap(10, 42.0)
	steep := steepness.Compute(h, 2)
	out := Deform(h, nil, steep, 2.5)
	for x := 0; x < h.W; x++ {
		for y := 0; y < h.H; y++ {
			require.InDelta(t, h.At(x, y), out.At(x, y), 1e-9)
		}
	}
}

func TestGuardBandNudgesAwayFromHalfIntervalMultiple(t *testing.T) {
	half := 1.25
	nudged := guardBand(2.5, half) // exactly on a multiple of half
	require.InDelta(t, 2.52, nudged, 1e-9)
}

func TestGuardBandLeavesFarValuesUnchanged(t *testing.T) {
	half := 1.25
	v := 2.8
	require.Equal(t, v, guardBand(v, half))
}
