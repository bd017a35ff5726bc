package compose

import (
	"bytes"
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/smoothjoin"
)

func solidLayer(name string, w, h int, c color.NRGBA, scale float64) Layer {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return Layer{Name: name, Image: img, OriginX: 0, OriginY: float64(h) * scale, Scale: scale}
}

func TestCompose_StacksLayersInOrder(t *testing.T) {
	canvas := Canvas{Width: 10, Height: 10, OriginX: 0, OriginY: 10, Scale: 1}
	layers := map[string]Layer{
		"water": solidLayer("water", 10, 10, color.NRGBA{0, 0, 255, 255}, 1),
		"green": solidLayer("green", 10, 10, color.NRGBA{0, 128, 0, 128}, 1),
	}
	out := Compose(canvas, layers, []string{"water", "green"})
	if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 10 {
		t.Fatalf("unexpected canvas size: %v", out.Bounds())
	}
	c := out.NRGBAAt(5, 5)
	if c.G == 0 {
		t.Errorf("expected green to blend over water, got %+v", c)
	}
}

func TestCompose_SkipsMissingLayers(t *testing.T) {
	canvas := Canvas{Width: 4, Height: 4, OriginX: 0, OriginY: 4, Scale: 1}
	out := Compose(canvas, map[string]Layer{}, DefaultOrder)
	c := out.NRGBAAt(0, 0)
	if c != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("expected blank white canvas, got %+v", c)
	}
}

func TestRasterizeFeatures_DrawsPolylineAndDot(t *testing.T) {
	feats := []smoothjoin.Feature{
		{Layer: smoothjoin.LayerContour, Verts: []contour.Vertex{{X: 1, Y: 1}, {X: 10, Y: 10}}},
		{Layer: smoothjoin.LayerDotKnoll, Point: contour.Vertex{X: 5, Y: 5}},
	}
	colors := map[smoothjoin.Layer]color.NRGBA{smoothjoin.LayerContour: {139, 69, 19, 255}}
	img := RasterizeFeatures(feats, 20, 20, 0, 20, 1, colors)
	if img.Bounds().Dx() != 20 {
		t.Fatalf("unexpected width")
	}
	if img.NRGBAAt(1, 19).A == 0 && img.NRGBAAt(10, 10).A == 0 {
		t.Error("expected the polyline to mark at least one pixel")
	}
}

func TestWritePGW_SixLines(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePGW(&buf, 0.5, 100, 200); err != nil {
		t.Fatalf("WritePGW: %v", err)
	}
	lines := strings.Split(buf.String(), "\r\n")
	if len(lines) < 6 {
		t.Fatalf("expected at least 6 lines, got %d: %q", len(lines), buf.String())
	}
}
