// Package cliff detects rock faces from raw point density: within a 3m cell
// grid, any pair of nearby points whose elevation difference exceeds a
// steepness-scaled limit becomes a short perpendicular tick mark across the
// implied cliff edge. This is the cliff detector named in spec.md §4.6,
// grounded on original_source/src/cliffs.rs's makecliffs.
package cliff

import (
	"math"

	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/record"
	"github.com/haltia-gis/terrainmap/internal/steepness"
)

// Segment is one cliff tick mark: a short line drawn perpendicular to the
// line joining the two points whose elevation gap triggered it.
type Segment struct {
	X1, Y1, X2, Y2 float64
}

// Options bundles the spec.md §6 cliff-detection parameters.
type Options struct {
	Cliff1Limit   float64
	Cliff2Limit   float64
	CliffThin     float64
	SteepFactor   float64
	FlatPlace     float64
	NoSmallCliffs float64 // 0 means "use the default of 6"
}

const cliffTickLength = 1.47

type binnedPoint struct {
	x, y, h float64
}

// cellGrid bins points into 3m-per-side cells.
type cellGrid struct {
	xmin, ymin float64
	w, h       int
	cells      [][]binnedPoint
}

func newCellGrid(xmin, ymin, xmax, ymax float64) *cellGrid {
	xmin = math.Floor(xmin/3) * 3
	ymin = math.Floor(ymin/3) * 3
	w := int(math.Ceil((xmax-xmin)/3)) + 1
	h := int(math.Ceil((ymax-ymin)/3)) + 1
	return &cellGrid{xmin: xmin, ymin: ymin, w: w, h: h, cells: make([][]binnedPoint, w*h)}
}

func (g *cellGrid) idx(x, y float64) (int, int) {
	cx := int(math.Floor((x - g.xmin) / 3))
	cy := int(math.Floor((y - g.ymin) / 3))
	return cx, cy
}

func (g *cellGrid) add(x, y, h float64) {
	cx, cy := g.idx(x, y)
	if cx < 0 || cy < 0 || cx >= g.w || cy >= g.h {
		return
	}
	g.cells[cy*g.w+cx] = append(g.cells[cy*g.w+cx], binnedPoint{x, y, h})
}

func (g *cellGrid) at(cx, cy int) []binnedPoint {
	if cx < 0 || cy < 0 || cx >= g.w || cy >= g.h {
		return nil
	}
	return g.cells[cy*g.w+cx]
}

// neighborhood gathers the 3x3 block of cells around (cx,cy).
func (g *cellGrid) neighborhood(cx, cy int) []binnedPoint {
	var t []binnedPoint
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			t = append(t, g.at(cx+dx, cy+dy)...)
		}
	}
	return t
}

func decimate(pts []binnedPoint, threshold, divisor int) []binnedPoint {
	if len(pts) <= threshold {
		return pts
	}
	b := (len(pts) - 1) / divisor
	if b < 1 {
		b = 1
	}
	out := make([]binnedPoint, 0, len(pts)/b+1)
	for i := 0; i < len(pts); i += b + 1 {
		out = append(out, pts[i])
	}
	return out
}

// thin applies Bernoulli thinning at rate keep (keep==1 disables thinning).
func thin(pts []record.Point, keep float64, rng func() float64) []record.Point {
	if keep >= 1 {
		return pts
	}
	out := pts[:0:0]
	for _, p := range pts {
		if rng() < keep {
			out = append(out, p)
		}
	}
	return out
}

// Detect identifies cliff edges from the raw (classified) point set and the
// rasterized ground heightmap, returning three escalating-confidence tiers:
// cliff2 (thin rock steps, image-deduplicated), cliff3 (larger steps, no
// dedup), and cliff4 (very steep ground-grid steps, fixed threshold).
func Detect(raw []record.Point, h *heightmap.Map, steep *steepness.Field, opt Options, rng func() float64) (cliff2, cliff3, cliff4 []Segment) {
	noSmall := opt.NoSmallCliffs
	if noSmall == 0 {
		noSmall = 6
	} else {
		noSmall -= opt.FlatPlace
	}

	var xmin, ymin = math.MaxFloat64, math.MaxFloat64
	var xmax, ymax = -math.MaxFloat64, -math.MaxFloat64
	for _, p := range raw {
		xmin, xmax = math.Min(xmin, p.X), math.Max(xmax, p.X)
		ymin, ymax = math.Min(ymin, p.Y), math.Max(ymax, p.Y)
	}
	if len(raw) == 0 {
		return nil, nil, nil
	}

	grid := newCellGrid(xmin, ymin, xmax, ymax)
	ground := thin(raw, opt.CliffThin, rng)
	for _, p := range ground {
		if p.Classification == 2 {
			grid.add(p.X, p.Y, p.Z)
		}
	}

	seenPixel := make(map[[2]int]bool)

	for cx := 0; cx < grid.w; cx++ {
		for cy := 0; cy < grid.h; cy++ {
			d := append([]binnedPoint{}, grid.at(cx, cy)...)
			if len(d) == 0 {
				continue
			}
			t := grid.neighborhood(cx, cy)

			d = decimate(d, 31, 30)
			t = decimate(t, 301, 300)

			tempMax, tempMin := -math.MaxFloat64, math.MaxFloat64
			for _, p := range t {
				tempMax = math.Max(tempMax, p.h)
				tempMin = math.Min(tempMin, p.h)
			}
			if tempMax-tempMin < opt.Cliff1Limit*0.999 {
				d = nil
			}

			for _, p0 := range d {
				steepVal := steepAt(steep, h, p0.x, p0.y) - opt.FlatPlace
				steepVal = clamp(steepVal, 0, 17)

				bonus := (opt.Cliff2Limit - opt.Cliff1Limit) * (1 - (noSmall-steepVal)/noSmall)
				limit := opt.Cliff1Limit + bonus

				bonus2 := opt.Cliff2Limit * opt.SteepFactor * (steepVal - noSmall)
				if bonus2 < 0 {
					bonus2 = 0
				}
				limit2 := opt.Cliff2Limit + bonus2

				for _, pt := range t {
					dist := math.Hypot(p0.x-pt.x, p0.y-pt.y)
					if dist <= 0 {
						continue
					}
					temp := p0.h - pt.h

					if steepVal < noSmall && temp > limit && temp > limit+(dist-limit)*0.85 {
						mx := math.Floor((p0.x+pt.x)/2 - xmin + 0.5)
						my := math.Floor((p0.y+pt.y)/2 - ymin + 0.5)
						key := [2]int{int(mx), int(my)}
						if !seenPixel[key] {
							seenPixel[key] = true
							cliff2 = append(cliff2, tick(p0.x, p0.y, pt.x, pt.y, dist))
						}
					}

					if temp > limit2 && temp > limit2+(dist-limit2)*0.85 {
						cliff3 = append(cliff3, tick(p0.x, p0.y, pt.x, pt.y, dist))
					}
				}
			}
		}
	}

	const cliff4Limit = 2.6 * 2.75
	grid4 := newCellGrid(xmin, ymin, xmax, ymax)
	for gy := 0; gy < h.H; gy++ {
		for gx := 0; gx < h.W; gx++ {
			if opt.CliffThin < 1 && rng() >= opt.CliffThin {
				continue
			}
			grid4.add(h.WorldX(gx), h.WorldY(gy), h.At(gx, gy))
		}
	}
	for cx := 0; cx < grid4.w; cx++ {
		for cy := 0; cy < grid4.h; cy++ {
			d := grid4.at(cx, cy)
			if len(d) == 0 {
				continue
			}
			t := grid4.neighborhood(cx, cy)
			for _, p0 := range d {
				for _, pt := range t {
					dist := math.Hypot(p0.x-pt.x, p0.y-pt.y)
					if dist <= 0 {
						continue
					}
					temp := p0.h - pt.h
					if temp > cliff4Limit && temp > cliff4Limit+(dist-cliff4Limit)*0.85 {
						cliff4 = append(cliff4, tick(p0.x, p0.y, pt.x, pt.y, dist))
					}
				}
			}
		}
	}

	return cliff2, cliff3, cliff4
}

func steepAt(steep *steepness.Field, h *heightmap.Map, x, y float64) float64 {
	gx := int(math.Floor((x-h.XOffset)/h.Scale + 0.5))
	gy := int(math.Floor((y-h.YOffset)/h.Scale + 0.5))
	if !h.InBounds(gx, gy) {
		return math.NaN()
	}
	v := steep.At(gx, gy)
	if math.IsNaN(v) {
		return math.NaN()
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func tick(x0, y0, xt, yt, dist float64) Segment {
	mx := (x0 + xt) / 2
	my := (y0 + yt) / 2
	dx := cliffTickLength * (y0 - yt) / dist
	dy := cliffTickLength * (x0 - xt) / dist
	return Segment{X1: mx + dx, Y1: my - dy, X2: mx - dx, Y2: my + dy}
}
