// Package compose stacks every raster layer a tile produces — the rendered
// contour/knoll/cliff line work, the green and yellow vegetation washes, the
// undergrowth hatching, and the water/building overlay — into one finished
// map image, resampling layers that were produced at different native
// resolutions onto a common pixel grid. Grounded on the teacher's
// internal/composite package, whose CompositeLayersOverBase/alphaOver
// functions this package's Compose and alphaOver generalize from a fixed
// geojson.LayerType enum to arbitrary named layers.
package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/haltia-gis/terrainmap/internal/smoothjoin"
)

// Layer is one raster contribution to the final map, anchored in world
// coordinates at its own native pixel scale.
type Layer struct {
	Name    string
	Image   image.Image
	OriginX float64 // world X of the layer image's pixel (0,0)
	OriginY float64 // world Y of the layer image's pixel (0,0); Y grows downward in image space
	Scale   float64 // world units per pixel
}

// DefaultOrder is the back-to-front stacking order for a finished map.
var DefaultOrder = []string{"water", "green", "yellow", "undergrowth", "contours", "knolls", "cliffs", "cultural"}

// Canvas describes the output grid every layer is resampled onto.
type Canvas struct {
	Width, Height    int
	OriginX, OriginY float64
	Scale            float64
}

// Compose resamples each named layer onto the output canvas and alpha-blends
// them in the given order, background-to-foreground. Layers not present in
// the input map are skipped.
func Compose(canvas Canvas, layers map[string]Layer, order []string) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	fillWhite(dst)

	for _, name := range order {
		l, ok := layers[name]
		if !ok {
			continue
		}
		resampled := resampleToCanvas(l, canvas)
		alphaOver(dst, resampled)
	}
	return dst
}

// resampleToCanvas reprojects a layer's pixels onto the canvas grid via
// bilinear interpolation (golang.org/x/image/draw), compensating for the
// layer's own origin/scale relative to the canvas.
func resampleToCanvas(l Layer, canvas Canvas) *image.NRGBA {
	b := l.Image.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return image.NewNRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	}

	// The destination rectangle, in canvas pixels, that this layer covers.
	x0 := (l.OriginX - canvas.OriginX) / canvas.Scale
	y0 := (canvas.OriginY - l.OriginY) / canvas.Scale
	w := float64(b.Dx()) * l.Scale / canvas.Scale
	h := float64(b.Dy()) * l.Scale / canvas.Scale

	dstRect := image.Rect(int(math.Round(x0)), int(math.Round(y0)), int(math.Round(x0+w)), int(math.Round(y0+h)))

	out := image.NewNRGBA(image.Rect(0, 0, canvas.Width, canvas.Height))
	xdraw.BiLinear.Scale(out, dstRect, l.Image, b, xdraw.Over, nil)
	return out
}

func fillWhite(img *image.NRGBA) {
	draw.Draw(img, img.Bounds(), image.NewUniform(color.NRGBA{255, 255, 255, 255}), image.Point{}, draw.Src)
}

// alphaOver composites src onto dst using standard over-blending on
// straight (non-premultiplied) NRGBA values, per pixel.
func alphaOver(dst *image.NRGBA, src *image.NRGBA) {
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			s := src.NRGBAAt(x, y)
			if s.A == 0 {
				continue
			}
			d := dst.NRGBAAt(x, y)
			sa := float64(s.A) / 255
			da := float64(d.A) / 255
			outA := sa + da*(1-sa)
			if outA <= 0 {
				dst.SetNRGBA(x, y, color.NRGBA{})
				continue
			}
			blend := func(sv, dv uint8) uint8 {
				v := (float64(sv)*sa + float64(dv)*da*(1-sa)) / outA
				return uint8(math.Round(v))
			}
			dst.SetNRGBA(x, y, color.NRGBA{
				R: blend(s.R, d.R),
				G: blend(s.G, d.G),
				B: blend(s.B, d.B),
				A: uint8(math.Round(outA * 255)),
			})
		}
	}
}

// RasterizeFeatures draws smoothjoin line-work features onto a fresh raster
// at the given origin/scale, one flat color per layer. Intended for turning
// the contour/knoll DXF-equivalent vector output into a compositable layer
// without a full DXF interpreter.
func RasterizeFeatures(features []smoothjoin.Feature, width, height int, originX, originY, scale float64, colors map[smoothjoin.Layer]color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for _, f := range features {
		c, ok := colors[f.Layer]
		if !ok {
			c = color.NRGBA{0, 0, 0, 255}
		}
		if len(f.Verts) == 0 {
			px, py := toPixel(f.Point.X, f.Point.Y, originX, originY, scale)
			drawDot(img, px, py, c)
			continue
		}
		for i := 1; i < len(f.Verts); i++ {
			x0, y0 := toPixel(f.Verts[i-1].X, f.Verts[i-1].Y, originX, originY, scale)
			x1, y1 := toPixel(f.Verts[i].X, f.Verts[i].Y, originX, originY, scale)
			drawLine(img, x0, y0, x1, y1, c)
		}
	}
	return img
}

func toPixel(x, y, originX, originY, scale float64) (int, int) {
	return int(math.Round((x - originX) / scale)), int(math.Round((originY - y) / scale))
}

func drawDot(img *image.NRGBA, x, y int, c color.NRGBA) {
	b := img.Bounds()
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			px, py := x+dx, y+dy
			if image.Pt(px, py).In(b) {
				img.SetNRGBA(px, py, c)
			}
		}
	}
}

// drawLine is a standard Bresenham rasterizer.
func drawLine(img *image.NRGBA, x0, y0, x1, y1 int, c color.NRGBA) {
	b := img.Bounds()
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 >= x1 {
		sx = -1
	}
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy
	for {
		if image.Pt(x0, y0).In(b) {
			img.SetNRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// WritePGW writes the six-line ESRI world-file sidecar (CRLF terminated)
// describing one pixel's affine placement: x-scale, row rotation, column
// rotation, y-scale (negative, since image rows run top-to-bottom while map
// Y grows upward), then the world coordinate of pixel (0,0)'s center.
func WritePGW(w io.Writer, scale, originX, originY float64) error {
	_, err := fmt.Fprintf(w, "%g\r\n0.0\r\n0.0\r\n%g\r\n%g\r\n%g\r\n",
		scale, -scale, originX+scale/2, originY-scale/2)
	return err
}
