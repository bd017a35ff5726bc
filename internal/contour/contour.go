// Package contour extracts marching-squares contour lines from a heightmap
// and assembles the individual cell-edge crossings into connected
// polylines using a two-slot endpoint adjacency scheme.
package contour

import (
	"math"

	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/paulmach/orb"
)

// Vertex is one contour polyline point in world coordinates, carrying the
// elevation level it was extracted at.
type Vertex struct {
	X, Y, Elevation float64
}

// Polyline is a chain of contour vertices. Closed rings repeat their first
// point as their last.
type Polyline struct {
	Verts  []Vertex
	Closed bool
}

// RingFrom converts a closed vertex chain into an orb.Ring, dropping the
// per-vertex elevation: point-in-ring and other planar geometry tests only
// need the outline.
func RingFrom(verts []Vertex) orb.Ring {
	ring := make(orb.Ring, len(verts))
	for i, v := range verts {
		ring[i] = orb.Point{v.X, v.Y}
	}
	return ring
}

// Ring converts the polyline's own vertices via RingFrom.
func (p Polyline) Ring() orb.Ring {
	return RingFrom(p.Verts)
}

// endpointKey identifies a polyline endpoint by its coordinate rounded down
// to 1/100th of a unit, so two crossing points computed from opposite sides
// of a shared cell edge collide onto the same key.
type endpointKey struct{ X, Y int64 }

func keyOf(x, y float64) endpointKey {
	return endpointKey{int64(math.Floor(x * 100)), int64(math.Floor(y * 100))}
}

// assembler tracks every open edge segment emitted for one contour level
// and joins them into polylines via a two-slot adjacency map: each
// endpoint key can link to up to two neighbours (slot 1 and slot 2), the
// two directions a contour line can continue in from that point.
type assembler struct {
	order []endpointKey
	coord map[endpointKey]Vertex
	link  map[endpointKey][2]*endpointKey
}

func newAssembler() *assembler {
	return &assembler{
		coord: make(map[endpointKey]Vertex),
		link:  make(map[endpointKey][2]*endpointKey),
	}
}

// addSegment records one cell-edge crossing segment between two endpoints
// at the same elevation level.
func (a *assembler) addSegment(p1, p2 Vertex) {
	k1, k2 := keyOf(p1.X, p1.Y), keyOf(p2.X, p2.Y)
	if k1 == k2 {
		return
	}
	a.link1(k1, p1, k2)
	a.link1(k2, p2, k1)
}

func (a *assembler) link1(k endpointKey, v Vertex, other endpointKey) {
	if _, seen := a.coord[k]; !seen {
		a.coord[k] = v
		a.order = append(a.order, k)
	}
	slots := a.link[k]
	o := other
	if slots[0] == nil {
		slots[0] = &o
	} else if slots[1] == nil {
		slots[1] = &o
	}
	a.link[k] = slots
}

// polylines walks every endpoint's adjacency chain exactly once, emitting
// one Polyline per connected component. A component whose walk returns to
// its own start is a closed ring.
func (a *assembler) polylines() []Polyline {
	visited := make(map[endpointKey]bool)
	var out []Polyline

	for _, start := range a.order {
		if visited[start] {
			continue
		}
		slots := a.link[start]
		// Walk outward from start in the slot-0 direction first (or
		// slot-1 if slot-0 is absent), then stitch the slot-1 direction
		// onto the front if the chain is open on both ends.
		verts := []Vertex{a.coord[start]}
		visited[start] = true

		walk := func(from endpointKey, next *endpointKey) []Vertex {
			var chain []Vertex
			prev := from
			cur := next
			for cur != nil {
				if visited[*cur] {
					if *cur == start {
						chain = append(chain, a.coord[*cur])
					}
					break
				}
				visited[*cur] = true
				chain = append(chain, a.coord[*cur])
				s := a.link[*cur]
				var nxt *endpointKey
				if s[0] != nil && *s[0] != prev {
					nxt = s[0]
				} else if s[1] != nil && *s[1] != prev {
					nxt = s[1]
				}
				prev = *cur
				cur = nxt
			}
			return chain
		}

		forward := walk(start, slots[0])
		closed := len(forward) > 0 && forward[len(forward)-1] == a.coord[start]

		verts = append(verts, forward...)
		if !closed && slots[1] != nil {
			backward := walk(start, slots[1])
			// prepend in reverse
			rev := make([]Vertex, len(backward))
			for i, v := range backward {
				rev[len(backward)-1-i] = v
			}
			verts = append(rev, verts...)
		}
		out = append(out, Polyline{Verts: verts, Closed: closed})
	}
	return out
}

// Options configures contour extraction.
type Options struct {
	Interval float64
	MinLevel float64 // if zero, computed from the heightmap's minimum elevation
	MaxLevel float64 // if zero, computed from the heightmap's maximum elevation
}

// Extract runs marching squares over h at every level from MinLevel to
// MaxLevel stepping by Interval, returning the polylines of each level in a
// map keyed by level; map iteration order is not defined.
func Extract(h *heightmap.Map, opt Options) map[float64][]Polyline {
	hmin, hmax := math.Inf(1), math.Inf(-1)
	for x := 0; x < h.W; x++ {
		for y := 0; y < h.H; y++ {
			v := h.At(x, y)
			if v < hmin {
				hmin = v
			}
			if v > hmax {
				hmax = v
			}
		}
	}
	minLevel := opt.MinLevel
	maxLevel := opt.MaxLevel
	if minLevel == 0 {
		minLevel = math.Floor(hmin/opt.Interval) * opt.Interval
	}
	if maxLevel == 0 {
		maxLevel = hmax
	}

	result := make(map[float64][]Polyline)
	for level := minLevel; level <= maxLevel; level += opt.Interval {
		result[level] = extractLevel(h, level)
	}
	return result
}

// dither nudges a corner elevation away from an exact tie with the level
// currently being contoured, so marching squares never has to resolve a
// degenerate case where a grid corner sits precisely on the contour line.
func dither(v, level float64) float64 {
	const guard = 0.05
	if math.Abs(v-level) < guard {
		if v >= level {
			return level + guard
		}
		return level - guard
	}
	return v
}

func extractLevel(h *heightmap.Map, level float64) []Polyline {
	asm := newAssembler()

	for i := 0; i < h.W-1; i++ {
		for j := 0; j < h.H-1; j++ {
			a := dither(h.At(i, j), level)
			b := dither(h.At(i, j+1), level)
			c := dither(h.At(i+1, j), level)
			d := dither(h.At(i+1, j+1), level)

			above := func(v float64) bool { return v >= level }
			aa, ab, ac, ad := above(a), above(b), above(c), above(d)
			if aa == ab && ab == ac && ac == ad {
				continue // cell entirely on one side of the level
			}

			px := func(x int) float64 { return h.WorldX(x) }
			py := func(y int) float64 { return h.WorldY(y) }

			lerp := func(v0, v1, p0, p1 float64) float64 {
				t := (level - v0) / (v1 - v0)
				return p0 + t*(p1-p0)
			}

			var crossings []Vertex
			if aa != ab { // top edge: a(i,j) - b(i,j+1), varies in y
				y := lerp(a, b, py(j), py(j+1))
				crossings = append(crossings, Vertex{X: px(i), Y: y, Elevation: level})
			}
			if ab != ad { // right edge: b(i,j+1) - d(i+1,j+1), varies in x
				x := lerp(b, d, px(i), px(i+1))
				crossings = append(crossings, Vertex{X: x, Y: py(j + 1), Elevation: level})
			}
			if ac != ad { // bottom edge: c(i+1,j) - d(i+1,j+1), varies in y
				y := lerp(c, d, py(j), py(j+1))
				crossings = append(crossings, Vertex{X: px(i + 1), Y: y, Elevation: level})
			}
			if aa != ac { // left edge: a(i,j) - c(i+1,j), varies in x
				x := lerp(a, c, px(i), px(i+1))
				crossings = append(crossings, Vertex{X: x, Y: py(j), Elevation: level})
			}

			switch len(crossings) {
			case 2:
				asm.addSegment(crossings[0], crossings[1])
			case 4:
				// Saddle case: two disjoint pairs of corners agree.
				// Pair crossings in perimeter order (top/right then
				// bottom/left); this is one of the two valid
				// resolutions marching squares allows for an
				// ambiguous cell.
				asm.addSegment(crossings[0], crossings[1])
				asm.addSegment(crossings[2], crossings[3])
			}
		}
	}

	return asm.polylines()
}
