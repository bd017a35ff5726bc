// Package knoll finds small summits the contour interval is too coarse to
// show and deforms the heightmap so a finer re-contour pass draws a ring
// around them.
package knoll

import (
	"math"
	"sort"

	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Ring is one closed contour loop considered as a knoll candidate.
type Ring struct {
	Verts      []contour.Vertex
	Elevation  float64
	CentroidX  float64
	CentroidY  float64
}

// minRingVerts/maxRingVerts bound which rings are worth considering: too
// few vertices is noise, too many is a large-scale landform rather than a
// knoll.
const (
	minRingVerts = 9
	maxRingVerts = 121
)

// RingsFromLevels extracts every closed ring across all contour levels that
// falls within the knoll-candidate vertex-count bounds.
func RingsFromLevels(levels map[float64][]contour.Polyline) []Ring {
	var rings []Ring
	for level, polys := range levels {
		for _, p := range polys {
			if !p.Closed || len(p.Verts) < minRingVerts || len(p.Verts) > maxRingVerts {
				continue
			}
			rings = append(rings, Ring{Verts: p.Verts, Elevation: level, CentroidX: centroidX(p.Verts), CentroidY: centroidY(p.Verts)})
		}
	}
	return rings
}

func centroidX(verts []contour.Vertex) float64 {
	var sum float64
	for _, v := range verts {
		sum += v.X
	}
	return sum / float64(len(verts))
}

func centroidY(verts []contour.Vertex) float64 {
	var sum float64
	for _, v := range verts {
		sum += v.Y
	}
	return sum / float64(len(verts))
}

// pointInRing is a point-in-polygon test over the ring's planar outline.
func pointInRing(verts []contour.Vertex, x, y float64) bool {
	return planar.RingContains(contour.RingFrom(verts), orb.Point{x, y})
}

func encloses(outer, inner Ring) bool {
	return pointInRing(outer.Verts, inner.CentroidX, inner.CentroidY)
}

// Candidate pairs a knoll candidate ring with the top ring that encloses
// it.
type Candidate struct {
	Ring Ring
	Top  Ring
}

// Classify splits every ring into "tops" (not enclosed by any higher ring)
// and knoll candidates: rings enclosed by a top, 0.1-4.6m below that top's
// elevation.
func Classify(rings []Ring) (tops []Ring, candidates []Candidate) {
	sort.Slice(rings, func(i, j int) bool { return rings[i].Elevation > rings[j].Elevation })

	for i, r := range rings {
		enclosedByHigher := false
		for j, other := range rings {
			if j == i || other.Elevation <= r.Elevation {
				continue
			}
			if encloses(other, r) {
				enclosedByHigher = true
				break
			}
		}
		if !enclosedByHigher {
			tops = append(tops, r)
		}
	}

	for _, top := range tops {
		for _, r := range rings {
			if r.Elevation >= top.Elevation {
				continue
			}
			drop := top.Elevation - r.Elevation
			if drop < 0.1 || drop > 4.6 {
				continue
			}
			if encloses(top, r) {
				candidates = append(candidates, Candidate{Ring: r, Top: top})
			}
		}
	}
	return tops, candidates
}

// Pin is the selected knoll summit point for one top ring.
type Pin struct {
	X, Y, Elevation float64
	Ring            Ring
}

// SelectPins picks, for every top, the best candidate underneath it: the
// one whose elevation is closest to a half-interval boundary above it,
// with a tie-break that keeps the previous pick, however much better the
// new candidate scores, while the previous pick's elevation lies within 0.2
// of the top's elevation minus 0.6.
func SelectPins(tops []Ring, candidates []Candidate, halfInterval float64) []Pin {
	best := make(map[int]Candidate) // index into tops -> chosen candidate
	bestScore := make(map[int]float64)

	type ringKey struct{ ele, cx, cy float64 }
	key := func(r Ring) ringKey { return ringKey{r.Elevation, r.CentroidX, r.CentroidY} }
	topIndex := make(map[ringKey]int, len(tops))
	for i, t := range tops {
		topIndex[key(t)] = i
	}

	for _, c := range candidates {
		ti, ok := topIndex[key(c.Top)]
		if !ok {
			continue
		}
		ele := c.Ring.Elevation
		test := math.Floor(ele/halfInterval+1.0)*halfInterval - ele
		prev, exists := best[ti]
		if !exists {
			best[ti] = c
			bestScore[ti] = test
			continue
		}
		if test < bestScore[ti] {
			// Keep the previous pick, whatever the new score, if its
			// elevation is within 0.2 of the top's elevation minus 0.6.
			if math.Abs(c.Top.Elevation-prev.Ring.Elevation-0.6) < 0.2 {
				continue
			}
			best[ti] = c
			bestScore[ti] = test
		}
	}

	var pins []Pin
	for ti, c := range best {
		pins = append(pins, Pin{X: c.Ring.CentroidX, Y: c.Ring.CentroidY, Elevation: c.Ring.Elevation, Ring: tops[ti]})
	}
	return pins
}

// soften smooths away sub-pin-scale bumps before the pins are raised: any
// cell whose 5x5 neighbourhood spans less than 1.25m gets blended toward its
// neighbourhood mean, weighted so steep cells resist softening and keep
// their peaks intact.
func soften(h *heightmap.Map, steep *steepness.Field) *heightmap.Map {
	out := h.Clone()
	const window = 2 // 5x5
	for x := 0; x < h.W; x++ {
		for y := 0; y < h.H; y++ {
			lo, hi := math.Inf(1), math.Inf(-1)
			sum, n := 0.0, 0
			var extremeLo, extremeHi float64
			first := true
			for dx := -window; dx <= window; dx++ {
				for dy := -window; dy <= window; dy++ {
					nx, ny := x+dx, y+dy
					if !h.InBounds(nx, ny) {
						continue
					}
					v := h.At(nx, ny)
					if v < lo {
						lo = v
					}
					if v > hi {
						hi = v
					}
					sum += v
					n++
					if first {
						extremeLo, extremeHi = v, v
						first = false
					} else {
						if v < extremeLo {
							extremeLo = v
						}
						if v > extremeHi {
							extremeHi = v
						}
					}
				}
			}
			if hi-lo >= 1.25 || n == 0 {
				continue
			}
			trimmedSum, trimmedN := sum-extremeLo-extremeHi, n-2
			mean := sum / float64(n)
			if trimmedN > 0 {
				mean = trimmedSum / float64(trimmedN)
			}
			s := steep.At(x, y)
			weight := 1.0
			if s > 0 {
				weight = 1 / (1 + s)
			}
			orig := h.At(x, y)
			out.Set(x, y, orig+(mean-orig)*weight)
		}
	}
	return out
}

// Deform returns a new heightmap with every pin's knoll raised, so a
// second, finer contour pass draws a visible ring. The input heightmap is
// never mutated, so a failed or partial deformation pass can always be
// restarted from the original raster.
func Deform(h *heightmap.Map, pins []Pin, steep *steepness.Field, interval float64) *heightmap.Map {
	out := soften(h, steep)
	halfInterval := interval / 2

	for _, pin := range pins {
		ele := pin.Elevation
		eleNew := math.Floor((ele-0.09)/interval+1.0) * interval
		move1 := eleNew - ele + 0.15
		var move2 float64
		switch {
		case move1 > 0.66*interval:
			move2 = move1 * 0.4
		case move1 < 0.25*interval:
			move2 = 0
			move1 += 0.3
		default:
			move2 = move1 * 0.6
		}
		move1 += 0.5

		if eleNew-ele > 1.5 {
			move1 -= 0.4
		}

		ring := pin.Ring.Verts
		if eleNew-ele > 1.5 && len(ring) > 21 {
			ring = shrinkRing(ring, pin.Ring.CentroidX, pin.Ring.CentroidY, 0.8)
		}

		minX, minY, maxX, maxY := ringBounds(ring)
		x0 := int(math.Floor((minX - out.XOffset) / out.Scale))
		x1 := int(math.Ceil((maxX - out.XOffset) / out.Scale))
		y0 := int(math.Floor((minY - out.YOffset) / out.Scale))
		y1 := int(math.Ceil((maxY - out.YOffset) / out.Scale))

		radius := clamp(distanceToCentroid(ring, pin.X, pin.Y)*0.8-1, 1, 12)
		ir := int(math.Ceil(radius))

		for x := x0 - ir; x <= x1+ir; x++ {
			for y := y0 - ir; y <= y1+ir; y++ {
				if !out.InBounds(x, y) {
					continue
				}
				wx, wy := out.WorldX(x), out.WorldY(y)
				if pointInRing(ring, wx, wy) {
					out.Set(x, y, guardBand(out.At(x, y)+move1, halfInterval))
					continue
				}
				d := math.Hypot(wx-pin.X, wy-pin.Y)
				if d <= radius {
					weight := 1 - d/radius
					out.Set(x, y, guardBand(out.At(x, y)+move2*weight, halfInterval))
				}
			}
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ringBounds(verts []contour.Vertex) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, v := range verts {
		minX = math.Min(minX, v.X)
		maxX = math.Max(maxX, v.X)
		minY = math.Min(minY, v.Y)
		maxY = math.Max(maxY, v.Y)
	}
	return
}

func distanceToCentroid(verts []contour.Vertex, cx, cy float64) float64 {
	var maxD float64
	for _, v := range verts {
		d := math.Hypot(v.X-cx, v.Y-cy)
		if d > maxD {
			maxD = d
		}
	}
	return maxD
}

func shrinkRing(verts []contour.Vertex, cx, cy, factor float64) []contour.Vertex {
	out := make([]contour.Vertex, len(verts))
	for i, v := range verts {
		out[i] = contour.Vertex{
			X:         cx + (v.X-cx)*factor,
			Y:         cy + (v.Y-cy)*factor,
			Elevation: v.Elevation,
		}
	}
	return out
}

// guardBand re-applies the banding guard after deformation pushes a cell's
// elevation near a new contour boundary.
func guardBand(ele, halfInterval float64) float64 {
	const guard = 0.02
	nearest := math.Floor(ele/halfInterval+0.5) * halfInterval
	if math.Abs(ele-nearest) < guard {
		if ele >= nearest {
			return nearest + guard
		}
		return nearest - guard
	}
	return ele
}
