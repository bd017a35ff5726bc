// Package cultural renders man-made features supplied as an ESRI shapefile
// (trails, fences, buildings, power lines — anything not derived from the
// point cloud itself) onto the same DXF layers the terrain pipeline writes
// to. This is the "shapefile renderer for cultural features" collaborator
// named in spec.md §1/§6, using github.com/jonas-p/go-shp the way the
// inmap example repo's shapefile I/O does (shp.Open/Next/Shape/
// ReadAttribute for reading; see _examples/other_examples' InMAP main.go).
package cultural

import (
	"fmt"

	"github.com/jonas-p/go-shp"

	"github.com/haltia-gis/terrainmap/internal/dxfio"
)

// Options controls how shapefile records map onto output DXF layers.
type Options struct {
	// LayerField names the attribute column holding each record's layer
	// name. When empty, or when a record's value is empty, geometry type
	// picks a default layer (culture_point/culture_line/culture_area).
	LayerField string
}

// Convert streams every shape in the file at path onto w, choosing a layer
// per record from Options.LayerField when present.
func Convert(path string, w *dxfio.Writer, opt Options) error {
	reader, err := shp.Open(path)
	if err != nil {
		return fmt.Errorf("cultural: open %s: %w", path, err)
	}
	defer reader.Close()

	fields := reader.Fields()
	layerFieldIdx := -1
	if opt.LayerField != "" {
		for i, f := range fields {
			if f.String() == opt.LayerField {
				layerFieldIdx = i
				break
			}
		}
	}

	for reader.Next() {
		n, shape := reader.Shape()
		layer := defaultLayer(shape)
		if layerFieldIdx >= 0 {
			if v := reader.ReadAttribute(n, layerFieldIdx); v != "" {
				layer = v
			}
		}

		switch s := shape.(type) {
		case *shp.Point:
			w.Point(layer, s.X, s.Y, 0)
		case *shp.PolyLine:
			writeParts(w, layer, s.Box, s.Parts, s.Points, false)
		case *shp.Polygon:
			writeParts(w, layer, s.Box, s.Parts, s.Points, true)
		case *shp.MultiPoint:
			for _, p := range s.Points {
				w.Point(layer, p.X, p.Y, 0)
			}
		default:
			// Unsupported shape type (e.g. PointZ/PolygonZ variants): skip.
		}
	}
	return reader.Err()
}

func defaultLayer(shape shp.Shape) string {
	switch shape.(type) {
	case *shp.Point, *shp.MultiPoint:
		return "culture_point"
	case *shp.PolyLine:
		return "culture_line"
	case *shp.Polygon:
		return "culture_area"
	default:
		return "culture"
	}
}

func writeParts(w *dxfio.Writer, layer string, _ shp.Box, parts []int32, points []shp.Point, closed bool) {
	n := len(parts)
	for i := 0; i < n; i++ {
		start := int(parts[i])
		end := len(points)
		if i+1 < n {
			end = int(parts[i+1])
		}
		if end-start < 2 {
			continue
		}
		verts := make([]dxfio.Vertex2D, 0, end-start)
		for _, p := range points[start:end] {
			verts = append(verts, dxfio.Vertex2D{X: p.X, Y: p.Y})
		}
		w.Polyline(layer, verts, closed)
	}
}
