// Package steepness computes a terrain-roughness field from a heightmap:
// the elevation range within a sliding window around each cell. Knoll
// softening uses a small radius; cliff detection uses a larger one.
package steepness

import "github.com/haltia-gis/terrainmap/internal/heightmap"

// Field holds one steepness sample per heightmap cell.
type Field struct {
	W, H int
	grid []float64
}

// At returns the steepness value at (x, y).
func (f *Field) At(x, y int) float64 { return f.grid[x*f.H+y] }

// Compute builds a steepness field from h using a (2*radius+1)-wide square
// window: each cell's value is the window's max elevation minus its min.
func Compute(h *heightmap.Map, radius int) *Field {
	f := &Field{W: h.W, H: h.H, grid: make([]float64, h.W*h.H)}
	for x := 0; x < h.W; x++ {
		for y := 0; y < h.H; y++ {
			lo, hi := h.At(x, y), h.At(x, y)
			for dx := -radius; dx <= radius; dx++ {
				for dy := -radius; dy <= radius; dy++ {
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
				}
			}
			f.grid[x*f.H+y] = hi - lo
		}
	}
	return f
}
