// Package smoothjoin turns the raw per-level segment chains produced by
// internal/contour into final cartographic contours: it splices polylines
// that share an endpoint, recovers each ring's elevation, classifies
// depressions, peels off tiny rings into dot-knoll point symbols, thins and
// smooths the survivors, and assigns the index/intermediate/form-line layers
// spec.md §4.4 describes. This is the "smooth-join" core named in spec.md §2.
package smoothjoin

import (
	"math"
	"sort"

	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Layer names a final output layer a Feature is drawn on.
type Layer string

const (
	LayerContour     Layer = "cont"
	LayerDepression  Layer = "depression"
	LayerDotKnoll    Layer = "dotknoll"
	LayerUDepression Layer = "udepression"
	LayerIndex       Layer = "_index"
	LayerIntermed    Layer = "_intermed"
)

// Feature is one finished output element: either a polyline contour or a
// single point (a dot-knoll / micro-depression symbol).
type Feature struct {
	Verts     []contour.Vertex // empty for point features
	Point     contour.Vertex   // valid only when Verts is empty
	Elevation float64
	Closed    bool
	Layer     Layer
}

// Options bundles the spec.md §6 parameters this stage reads.
type Options struct {
	Interval         float64 // level spacing of the polylines being processed: recovered elevations are rounded to a multiple of it and the form-line test uses twice it; there is no separate, finer quantization step
	IndexContours    float64
	Smoothing        float64
	Curviness        float64
	FormlineEnabled  bool
	InitialDotKnolls float64 // inidotknolls, used by the knoll-fidelity guard
	ScaleFactor      float64
}

type endpointKey struct{ X, Y int64 }

func keyOf(v contour.Vertex) endpointKey {
	return endpointKey{int64(math.Floor(v.X * 100)), int64(math.Floor(v.Y * 100))}
}

// ring is a mutable in-progress polyline during joining.
type ring struct {
	verts  []contour.Vertex
	closed bool
	done   bool // removed from the active pool (merged away, or too long to join)
}

func (r *ring) head() contour.Vertex { return r.verts[0] }
func (r *ring) tail() contour.Vertex { return r.verts[len(r.verts)-1] }

func reversed(v []contour.Vertex) []contour.Vertex {
	out := make([]contour.Vertex, len(v))
	for i, x := range v {
		out[len(v)-1-i] = x
	}
	return out
}

// Join splices polylines that share an endpoint into maximal chains, per
// spec.md §4.4's join protocol. Only polylines with at most 200 vertices
// participate; longer polylines pass through untouched, as the original
// treats them as already-final.
func Join(polys []contour.Polyline) []contour.Polyline {
	var out []contour.Polyline
	var active []*ring

	for _, p := range polys {
		if p.Closed || len(p.Verts) > 200 {
			out = append(out, p)
			continue
		}
		verts := make([]contour.Vertex, len(p.Verts))
		copy(verts, p.Verts)
		active = append(active, &ring{verts: verts})
	}

	merged := true
	for merged {
		merged = false
		for i, a := range active {
			if a.done || a.closed {
				continue
			}
			for j := i + 1; j < len(active); j++ {
				b := active[j]
				if b.done || b.closed {
					continue
				}
				if spliceOne(a, b) {
					b.done = true
					merged = true
					if keyOf(a.head()) == keyOf(a.tail()) {
						a.closed = true
					}
					break
				}
			}
		}
	}

	for _, r := range active {
		if r.done {
			continue
		}
		out = append(out, contour.Polyline{Verts: r.verts, Closed: r.closed})
	}
	return out
}

// spliceOne attempts to append b onto a at whichever end matches, reversing
// b if needed. Returns false if a and b share no endpoint.
func spliceOne(a, b *ring) bool {
	ah, at := keyOf(a.head()), keyOf(a.tail())
	bh, bt := keyOf(b.head()), keyOf(b.tail())

	switch {
	case at == bh:
		a.verts = append(a.verts, b.verts[1:]...)
	case at == bt:
		a.verts = append(a.verts, reversed(b.verts)[1:]...)
	case ah == bt:
		a.verts = append(append([]contour.Vertex{}, b.verts[:len(b.verts)-1]...), a.verts...)
	case ah == bh:
		a.verts = append(reversed(b.verts)[:len(b.verts)-1], a.verts...)
	default:
		return false
	}
	return true
}

// RecoverElevation assigns each polyline's cartographic elevation: for a
// closed ring, by bilinearly sampling the heightmap along an interior
// grid-aligned row when one exists; otherwise by averaging the heightmap
// under every vertex.
func RecoverElevation(h *heightmap.Map, p contour.Polyline, interval float64) float64 {
	if p.Closed {
		for _, v := range p.Verts {
			fx := (v.X - h.XOffset) / h.Scale
			if math.Abs(fx-math.Round(fx)) < 1e-6 {
				fy := (v.Y - h.YOffset) / h.Scale
				ele := h.BilinearAt(fx, fy)
				return quantize(ele, interval)
			}
		}
	}
	var sum float64
	for _, v := range p.Verts {
		fx := (v.X - h.XOffset) / h.Scale
		fy := (v.Y - h.YOffset) / h.Scale
		sum += h.BilinearAt(fx, fy)
	}
	return quantize(sum/float64(len(p.Verts)), interval)
}

func quantize(v, interval float64) float64 {
	if interval <= 0 {
		return v
	}
	return math.Round(v/interval) * interval
}

// IsDepression implements spec.md §4.4's depression test: the interior is
// concave (a depression) iff the sampled interior elevation is higher than
// the ring's own elevation and the probe point lies inside the ring, or
// lower and the probe lies outside it.
func IsDepression(h *heightmap.Map, p contour.Polyline, elevation float64) bool {
	if !p.Closed || len(p.Verts) < 3 {
		return false
	}
	px, py, ok := gridAlignedProbe(p, h)
	if !ok {
		px, py = centroid(p.Verts)
	}
	interior := h.BilinearAt((px-h.XOffset)/h.Scale, (py-h.YOffset)/h.Scale)
	inside := planar.RingContains(p.Ring(), orb.Point{px, py})
	if interior > elevation {
		return inside
	}
	return !inside
}

// gridAlignedProbe locates a vertex lying on a heightmap row (its x is an
// exact grid column) and nudges it half a cell toward the ring's centroid.
// Sampling the heightmap at the boundary vertex itself would just recover
// the contour's own elevation; moving the probe into the interior is what
// lets the depression test compare against a genuinely different sample.
func gridAlignedProbe(p contour.Polyline, h *heightmap.Map) (x, y float64, ok bool) {
	for _, v := range p.Verts {
		fx := (v.X - h.XOffset) / h.Scale
		if math.Abs(fx-math.Round(fx)) < 1e-6 {
			cx, cy := centroid(p.Verts)
			dx, dy := cx-v.X, cy-v.Y
			d := math.Hypot(dx, dy)
			if d < 1e-9 {
				return v.X, v.Y, true
			}
			step := h.Scale * 0.5
			return v.X + dx/d*step, v.Y + dy/d*step, true
		}
	}
	return 0, 0, false
}

func centroid(verts []contour.Vertex) (x, y float64) {
	for _, v := range verts {
		x += v.X
		y += v.Y
	}
	n := float64(len(verts))
	return x / n, y / n
}

// ExtractDotKnolls removes closed polylines with fewer than 15 vertices from
// polys and returns them as point Features on LayerDotKnoll (or
// LayerUDepression for concave ones). Rings that additionally fail the
// knoll-fidelity guard are dropped outright as banding noise.
func ExtractDotKnolls(h *heightmap.Map, steep *steepness.Field, polys []contour.Polyline, interval float64, opt Options) (survivors []contour.Polyline, dots []Feature) {
	for _, p := range polys {
		if p.Closed && len(p.Verts) < 15 {
			if !KnollFidelityGuard(p, h, steep, opt) {
				continue
			}
			ele := RecoverElevation(h, p, interval)
			cx, cy := centroid(p.Verts)
			layer := LayerDotKnoll
			if IsDepression(h, p, ele) {
				layer = LayerUDepression
			}
			dots = append(dots, Feature{
				Point:     contour.Vertex{X: cx, Y: cy, Elevation: ele},
				Elevation: ele,
				Layer:     layer,
			})
			continue
		}
		survivors = append(survivors, p)
	}
	return survivors, dots
}

// AdaptiveThin drops vertices from long, flat reaches of a polyline: for
// polylines with more than 100 vertices, a vertex is dropped when the local
// steepness is below 0.5 and it sits within 4m of the previously retained
// vertex.
func AdaptiveThin(p contour.Polyline, steep *steepness.Field, h *heightmap.Map) contour.Polyline {
	if len(p.Verts) <= 100 {
		return p
	}
	out := make([]contour.Vertex, 0, len(p.Verts))
	out = append(out, p.Verts[0])
	for i := 1; i < len(p.Verts); i++ {
		v := p.Verts[i]
		last := out[len(out)-1]
		if i == len(p.Verts)-1 {
			out = append(out, v)
			continue
		}
		dist := math.Hypot(v.X-last.X, v.Y-last.Y)
		gx := int(math.Round((v.X - h.XOffset) / h.Scale))
		gy := int(math.Round((v.Y - h.YOffset) / h.Scale))
		local := 0.0
		if h.InBounds(gx, gy) {
			local = steep.At(gx, gy)
		}
		if local < 0.5 && dist < 4.0 {
			continue
		}
		out = append(out, v)
	}
	return contour.Polyline{Verts: out, Closed: p.Closed}
}

// Smooth applies two passes of the weighted 3-point average described in
// spec.md §4.4, then the curviness boost. Closed polylines are smoothed as
// rings (the seam participates like any interior vertex).
func Smooth(p contour.Polyline, smoothing, curviness float64) contour.Polyline {
	verts := make([]contour.Vertex, len(p.Verts))
	copy(verts, p.Verts)

	for pass := 0; pass < 2; pass++ {
		verts = smoothPass(verts, p.Closed, smoothing)
	}
	verts = curvinessBoost(verts, p.Closed, curviness)

	if p.Closed && len(verts) > 0 {
		verts[len(verts)-1] = verts[0]
	}
	return contour.Polyline{Verts: verts, Closed: p.Closed}
}

func smoothPass(verts []contour.Vertex, closed bool, s float64) []contour.Vertex {
	n := len(verts)
	if n < 3 {
		return verts
	}
	w := 1.0 / (0.01 + s)
	denom := 2 + w
	out := make([]contour.Vertex, n)
	copy(out, verts)

	lo, hi := 1, n-2
	if closed {
		lo, hi = 0, n-1
	}
	for k := lo; k <= hi; k++ {
		km1 := k - 1
		kp1 := k + 1
		if closed {
			km1 = (k - 1 + n) % n
			kp1 = (k + 1) % n
		}
		prev, cur, next := verts[km1], verts[k], verts[kp1]
		out[k] = contour.Vertex{
			X:         (prev.X + cur.X*w + next.X) / denom,
			Y:         (prev.Y + cur.Y*w + next.Y) / denom,
			Elevation: cur.Elevation,
		}
	}
	return out
}

// curvinessBoost moves each vertex away from the 6-point running mean of
// vertices k-3..k+2 by curviness times its offset from that mean,
// sharpening bends; points on a straight stretch stay on its line. Only
// this one mean is used.
func curvinessBoost(verts []contour.Vertex, closed bool, curviness float64) []contour.Vertex {
	n := len(verts)
	if n < 7 || curviness == 0 {
		return verts
	}
	at := func(i int) contour.Vertex {
		if closed {
			return verts[((i%n)+n)%n]
		}
		if i < 0 {
			return verts[0]
		}
		if i >= n {
			return verts[n-1]
		}
		return verts[i]
	}
	mean := func(center int) (float64, float64) {
		var sx, sy float64
		for d := -3; d <= 2; d++ {
			v := at(center + d)
			sx += v.X
			sy += v.Y
		}
		return sx / 6, sy / 6
	}
	out := make([]contour.Vertex, n)
	copy(out, verts)
	lo, hi := 3, n-4
	if closed {
		lo, hi = 0, n-1
	}
	for k := lo; k <= hi; k++ {
		nx, ny := mean(k)
		v := verts[k]
		out[k] = contour.Vertex{
			X:         v.X + curviness*(v.X-nx),
			Y:         v.Y + curviness*(v.Y-ny),
			Elevation: v.Elevation,
		}
	}
	return out
}

// Classify assigns the output layer for a non-point polyline feature, given
// whether it tested as a depression.
func Classify(elevation float64, depression bool, opt Options) Layer {
	if depression {
		return LayerDepression
	}
	if opt.IndexContours > 0 && nearMultiple(elevation, opt.IndexContours) {
		return LayerIndex
	}
	if opt.FormlineEnabled && !nearMultiple(elevation, 2*opt.Interval) {
		return LayerIntermed
	}
	return LayerContour
}

func nearMultiple(v, step float64) bool {
	if step <= 0 {
		return false
	}
	r := math.Mod(v, step)
	if r < 0 {
		r += step
	}
	return r < 1e-6 || step-r < 1e-6
}

// KnollFidelityGuard reports whether a ring survives the noise filter: rings
// shorter than 41 vertices with few steep samples underneath them and whose
// local elevation spread is at least the dot-knoll threshold are dropped
// as banding noise rather than real relief, per spec.md §4.4. Rings at or
// above the vertex threshold always survive.
func KnollFidelityGuard(p contour.Polyline, h *heightmap.Map, steep *steepness.Field, opt Options) bool {
	if len(p.Verts) >= 41 {
		return true
	}
	minEle, maxEle, steepCount := ringElevationStats(p.Verts, h, steep)
	fewSteepSamples := steepCount < 3
	threshold := 0.45 * opt.ScaleFactor * opt.InitialDotKnolls
	noise := fewSteepSamples && maxEle-threshold >= minEle
	return !noise
}

// ringElevationStats samples the heightmap and steepness field over a
// ring's bounding box, returning the elevation range underneath it and a
// count of cells whose local steepness exceeds a fixed "steep" cutoff.
func ringElevationStats(verts []contour.Vertex, h *heightmap.Map, steep *steepness.Field) (minEle, maxEle float64, steepCount int) {
	const steepCutoff = 1.0
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, v := range verts {
		minX, maxX = math.Min(minX, v.X), math.Max(maxX, v.X)
		minY, maxY = math.Min(minY, v.Y), math.Max(maxY, v.Y)
	}
	x0 := int(math.Floor((minX - h.XOffset) / h.Scale))
	x1 := int(math.Ceil((maxX - h.XOffset) / h.Scale))
	y0 := int(math.Floor((minY - h.YOffset) / h.Scale))
	y1 := int(math.Ceil((maxY - h.YOffset) / h.Scale))

	minEle, maxEle = math.Inf(1), math.Inf(-1)
	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			if !h.InBounds(x, y) {
				continue
			}
			e := h.At(x, y)
			minEle, maxEle = math.Min(minEle, e), math.Max(maxEle, e)
			if steep.At(x, y) > steepCutoff {
				steepCount++
			}
		}
	}
	if math.IsInf(minEle, 1) {
		minEle, maxEle = 0, 0
	}
	return minEle, maxEle, steepCount
}

// Process runs the full §4.4 pipeline over one contour level's joined
// polylines: elevation recovery, depression classification, dot-knoll
// extraction, thinning, smoothing, and layer assignment.
func Process(h *heightmap.Map, steep *steepness.Field, polys []contour.Polyline, opt Options) []Feature {
	joined := Join(polys)
	survivors, dots := ExtractDotKnolls(h, steep, joined, opt.Interval, opt)

	features := make([]Feature, 0, len(survivors)+len(dots))
	features = append(features, dots...)

	for _, p := range survivors {
		ele := RecoverElevation(h, p, opt.Interval)
		depression := p.Closed && IsDepression(h, p, ele)
		thinned := AdaptiveThin(p, steep, h)
		smoothed := Smooth(thinned, opt.Smoothing, opt.Curviness)
		layer := Classify(ele, depression, opt)
		features = append(features, Feature{
			Verts:     smoothed.Verts,
			Elevation: ele,
			Closed:    smoothed.Closed,
			Layer:     layer,
		})
	}

	sort.Slice(features, func(i, j int) bool { return features[i].Elevation < features[j].Elevation })
	return features
}
