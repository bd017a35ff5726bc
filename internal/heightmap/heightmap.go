// Package heightmap holds the dense elevation grid shared by every later
// stage of the terrain pipeline, plus its binary on-disk codec.
package heightmap

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Map is a dense elevation grid stored column by column (cell (x, y) at
// index x*H + y). Cell (x, y) covers the square of side Scale metres whose
// centre sits at (XOffset + x*Scale, YOffset + y*Scale).
type Map struct {
	XOffset, YOffset float64
	Scale            float64
	W, H             int
	grid             []float64
}

// New allocates a W×H grid filled with fill.
func New(xoffset, yoffset, scale float64, w, h int, fill float64) *Map {
	g := make([]float64, w*h)
	if fill != 0 {
		for i := range g {
			g[i] = fill
		}
	}
	return &Map{XOffset: xoffset, YOffset: yoffset, Scale: scale, W: w, H: h, grid: g}
}

func (m *Map) index(x, y int) int {
	if x < 0 || x >= m.W || y < 0 || y >= m.H {
		panic(fmt.Sprintf("heightmap: index out of bounds: size is (%d, %d) but index is (%d, %d)", m.W, m.H, x, y))
	}
	return x*m.H + y
}

// At returns the elevation at cell (x, y).
func (m *Map) At(x, y int) float64 { return m.grid[m.index(x, y)] }

// Set assigns the elevation at cell (x, y).
func (m *Map) Set(x, y int, v float64) { m.grid[m.index(x, y)] = v }

// InBounds reports whether (x, y) is a valid cell coordinate.
func (m *Map) InBounds(x, y int) bool { return x >= 0 && x < m.W && y >= 0 && y < m.H }

// WorldX converts a grid column to a world-space x coordinate.
func (m *Map) WorldX(x int) float64 { return m.XOffset + float64(x)*m.Scale }

// WorldY converts a grid row to a world-space y coordinate.
func (m *Map) WorldY(y int) float64 { return m.YOffset + float64(y)*m.Scale }

// HasNaN reports whether any cell holds NaN. A heightmap with unfilled gaps
// must never reach the contouring stage; this check is the invariant gate.
func (m *Map) HasNaN() bool {
	for _, v := range m.grid {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy. Knoll deformation must never mutate its input
// in place, so every deformation pass starts from a Clone.
func (m *Map) Clone() *Map {
	out := &Map{XOffset: m.XOffset, YOffset: m.YOffset, Scale: m.Scale, W: m.W, H: m.H}
	out.grid = make([]float64, len(m.grid))
	copy(out.grid, m.grid)
	return out
}

// Write serializes the heightmap: three float64 header fields (XOffset,
// YOffset, Scale), W and H as uint64, then the W*H grid values, all in
// native byte order.
func (m *Map) Write(w io.Writer) error {
	hdr := []float64{m.XOffset, m.YOffset, m.Scale}
	if err := binary.Write(w, binary.NativeEndian, hdr); err != nil {
		return fmt.Errorf("heightmap: write header: %w", err)
	}
	if err := binary.Write(w, binary.NativeEndian, uint64(m.W)); err != nil {
		return fmt.Errorf("heightmap: write width: %w", err)
	}
	if err := binary.Write(w, binary.NativeEndian, uint64(m.H)); err != nil {
		return fmt.Errorf("heightmap: write height: %w", err)
	}
	if err := binary.Write(w, binary.NativeEndian, m.grid); err != nil {
		return fmt.Errorf("heightmap: write grid: %w", err)
	}
	return nil
}

// Read deserializes a heightmap previously produced by Write.
func Read(r io.Reader) (*Map, error) {
	var hdr [3]float64
	if err := binary.Read(r, binary.NativeEndian, &hdr); err != nil {
		return nil, fmt.Errorf("heightmap: read header: %w", err)
	}
	var w64, h64 uint64
	if err := binary.Read(r, binary.NativeEndian, &w64); err != nil {
		return nil, fmt.Errorf("heightmap: read width: %w", err)
	}
	if err := binary.Read(r, binary.NativeEndian, &h64); err != nil {
		return nil, fmt.Errorf("heightmap: read height: %w", err)
	}
	m := &Map{XOffset: hdr[0], YOffset: hdr[1], Scale: hdr[2], W: int(w64), H: int(h64)}
	m.grid = make([]float64, m.W*m.H)
	if err := binary.Read(r, binary.NativeEndian, m.grid); err != nil {
		return nil, fmt.Errorf("heightmap: read grid: %w", err)
	}
	return m, nil
}

// BilinearAt interpolates the elevation at a fractional grid coordinate,
// clamping to the grid edges. Used by contour extraction and knoll pin
// elevation lookups where a vertex falls between cell centers.
func (m *Map) BilinearAt(fx, fy float64) float64 {
	if fx < 0 {
		fx = 0
	}
	if fy < 0 {
		fy = 0
	}
	maxX := float64(m.W - 1)
	maxY := float64(m.H - 1)
	if fx > maxX {
		fx = maxX
	}
	if fy > maxY {
		fy = maxY
	}
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	x1 := x0 + 1
	y1 := y0 + 1
	if x1 > m.W-1 {
		x1 = m.W - 1
	}
	if y1 > m.H-1 {
		y1 = m.H - 1
	}
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	v00 := m.At(x0, y0)
	v10 := m.At(x1, y0)
	v01 := m.At(x0, y1)
	v11 := m.At(x1, y1)

	top := v00 + (v10-v00)*tx
	bottom := v01 + (v11-v01)*tx
	return top + (bottom-top)*ty
}
