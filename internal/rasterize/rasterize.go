// Package rasterize turns a stream of ground/vegetation points into a dense
// heightmap: average elevation per cell, gap-filled where no point fell,
// then nudged off contour-level boundaries so the later marching-squares
// pass never has to resolve an exact tie.
package rasterize

import (
	"errors"
	"fmt"
	"math"

	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/record"
)

// ErrDegenerate is returned when the input stream has no points in the
// required classification: the tile has nothing to rasterize, not a
// malformed or unreadable input.
var ErrDegenerate = errors.New("rasterize: no points in required classification")

// cellAccumulator tracks a running elevation sum and point count for one
// grid cell, averaged once every point has been binned.
type cellAccumulator struct {
	sum   float64
	count int
}

// Options configures rasterization.
type Options struct {
	ScaleFactor     float64 // grid cell size in metres
	ContourInterval float64 // used only for the banding-guard nudge
	WaterClass      uint8
	GroundOnly      bool // restrict to classification 2 (ground) and WaterClass
}

// Rasterize consumes every point from r and produces a gap-filled, banding-
// guarded heightmap. Points are read exactly once, so r must be positioned
// at the start of the stream the caller wants rasterized.
func Rasterize(r *record.Reader, opt Options) (*heightmap.Map, error) {
	var pts []record.Point
	xmin, xmax := math.Inf(1), math.Inf(-1)
	ymin, ymax := math.Inf(1), math.Inf(-1)

	for {
		p, ok, err := r.Next()
		if err != nil {
			return nil, fmt.Errorf("rasterize: read point: %w", err)
		}
		if !ok {
			break
		}
		if opt.GroundOnly && !(p.Classification == 2 || p.Classification == opt.WaterClass) {
			continue
		}
		pts = append(pts, p)
		xmin = math.Min(xmin, p.X)
		xmax = math.Max(xmax, p.X)
		ymin = math.Min(ymin, p.Y)
		ymax = math.Max(ymax, p.Y)
	}
	if len(pts) == 0 {
		return nil, ErrDegenerate
	}

	scale := opt.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	// Snap the grid origin to a multiple of 2*scale, matching the reference
	// implementation's grid-alignment convention.
	step := 2 * scale
	xmin = math.Floor(xmin/step) * step
	ymin = math.Floor(ymin/step) * step

	w := int(math.Ceil((xmax-xmin)/scale)) + 1
	h := int(math.Ceil((ymax-ymin)/scale)) + 1
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	cells := make([]cellAccumulator, w*h)
	at := func(x, y int) int { return x*h + y }

	for _, p := range pts {
		cx := int(math.Round((p.X - xmin) / scale))
		cy := int(math.Round((p.Y - ymin) / scale))
		if cx < 0 || cx >= w || cy < 0 || cy >= h {
			continue
		}
		c := &cells[at(cx, cy)]
		c.sum += p.Z
		c.count++
	}

	grid := make([]float64, w*h)
	has := make([]bool, w*h)
	for i, c := range cells {
		if c.count > 0 {
			grid[i] = c.sum / float64(c.count)
			has[i] = true
		} else {
			grid[i] = math.NaN()
		}
	}

	fillGaps(grid, has, w, h)

	if interval := opt.ContourInterval; interval > 0 {
		applyBandingGuard(grid, interval)
	}

	hm := heightmap.New(xmin, ymin, scale, w, h, 0)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			hm.Set(x, y, grid[at(x, y)])
		}
	}
	if hm.HasNaN() {
		return nil, fmt.Errorf("rasterize: heightmap still has unfilled cells after gap-fill")
	}
	return hm, nil
}

// fillGaps implements the reference implementation's three-phase gap fill:
// first a row/column linear-interpolation pass averaged together, then a
// 3x3-neighbour average for anything still missing, then a column
// down-then-up sweep as a last resort for isolated stragglers.
func fillGaps(grid []float64, has []bool, w, h int) {
	at := func(x, y int) int { return x*h + y }

	// Phase 1: row and column linear interpolation between known values,
	// averaged where both directions produce an estimate.
	rowFill := make([]float64, w*h)
	rowHas := make([]bool, w*h)
	for y := 0; y < h; y++ {
		lastX, lastV := -1, 0.0
		for x := 0; x < w; x++ {
			if has[at(x, y)] {
				if lastX >= 0 && x-lastX > 1 {
					for xx := lastX + 1; xx < x; xx++ {
						t := float64(xx-lastX) / float64(x-lastX)
						rowFill[at(xx, y)] = lastV + (grid[at(x, y)]-lastV)*t
						rowHas[at(xx, y)] = true
					}
				}
				lastX, lastV = x, grid[at(x, y)]
			}
		}
	}
	colFill := make([]float64, w*h)
	colHas := make([]bool, w*h)
	for x := 0; x < w; x++ {
		lastY, lastV := -1, 0.0
		for y := 0; y < h; y++ {
			if has[at(x, y)] {
				if lastY >= 0 && y-lastY > 1 {
					for yy := lastY + 1; yy < y; yy++ {
						t := float64(yy-lastY) / float64(y-lastY)
						colFill[at(x, yy)] = lastV + (grid[at(x, y)]-lastV)*t
						colHas[at(x, yy)] = true
					}
				}
				lastY, lastV = y, grid[at(x, y)]
			}
		}
	}
	for i := range grid {
		if has[i] {
			continue
		}
		switch {
		case rowHas[i] && colHas[i]:
			grid[i] = (rowFill[i] + colFill[i]) / 2
			has[i] = true
		case rowHas[i]:
			grid[i] = rowFill[i]
			has[i] = true
		case colHas[i]:
			grid[i] = colFill[i]
			has[i] = true
		}
	}

	// Phase 2: 3x3-neighbour average for anything still missing.
	changed := true
	for pass := 0; changed && pass < 8; pass++ {
		changed = false
		for x := 0; x < w; x++ {
			for y := 0; y < h; y++ {
				i := at(x, y)
				if has[i] {
					continue
				}
				var sum float64
				var n int
				for dx := -1; dx <= 1; dx++ {
					for dy := -1; dy <= 1; dy++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || nx >= w || ny < 0 || ny >= h {
							continue
						}
						ni := at(nx, ny)
						if has[ni] {
							sum += grid[ni]
							n++
						}
					}
				}
				if n > 0 {
					grid[i] = sum / float64(n)
					has[i] = true
					changed = true
				}
			}
		}
	}

	// Phase 3: column down-then-up sweep, last resort for isolated gaps
	// (e.g. a corner with no populated 3x3 neighbourhood yet).
	for x := 0; x < w; x++ {
		var last float64
		seen := false
		for y := 0; y < h; y++ {
			i := at(x, y)
			if has[i] {
				last = grid[i]
				seen = true
			} else if seen {
				grid[i] = last
				has[i] = true
			}
		}
		seen = false
		for y := h - 1; y >= 0; y-- {
			i := at(x, y)
			if has[i] {
				last = grid[i]
				seen = true
			} else if seen {
				grid[i] = last
				has[i] = true
			}
		}
	}
}

// applyBandingGuard nudges any cell whose elevation sits within 0.02m of an
// exact contour-interval boundary away from that boundary, so marching
// squares never has to special-case an exact tie between a cell and a
// contour level.
func applyBandingGuard(grid []float64, interval float64) {
	const guard = 0.02
	for i, ele := range grid {
		nearest := math.Floor(ele/interval+0.5) * interval
		if math.Abs(ele-nearest) < guard {
			if ele >= nearest {
				grid[i] = nearest + guard
			} else {
				grid[i] = nearest - guard
			}
		}
	}
}
