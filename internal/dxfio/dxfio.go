// Package dxfio writes the small subset of legacy ASCII DXF this pipeline
// needs: POLYLINE/VERTEX/SEQEND entities for contours and cliff segments,
// and POINT entities for knoll pins. Every emitted file uses CRLF line
// endings, matching what DXF-consuming orienteering software expects.
package dxfio

import (
	"bufio"
	"fmt"
	"io"
)

// Writer emits one DXF document to an underlying io.Writer.
type Writer struct {
	w   *bufio.Writer
	err error
}

// NewWriter wraps w as a DXF document writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (d *Writer) line(code int, value string) {
	if d.err != nil {
		return
	}
	if _, err := fmt.Fprintf(d.w, "%3d\r\n%s\r\n", code, value); err != nil {
		d.err = err
	}
}

func (d *Writer) lineF(code int, value float64) {
	d.line(code, fmt.Sprintf("%.6f", value))
}

// Header writes the SECTION/HEADER block with the drawing extents, then
// opens SECTION/ENTITIES. Call Close when done emitting entities.
func (d *Writer) Header(xmin, ymin, xmax, ymax float64) {
	d.line(0, "SECTION")
	d.line(2, "HEADER")
	d.line(9, "$EXTMIN")
	d.lineF(10, xmin)
	d.lineF(20, ymin)
	d.line(9, "$EXTMAX")
	d.lineF(10, xmax)
	d.lineF(20, ymax)
	d.line(0, "ENDSEC")
	d.line(0, "SECTION")
	d.line(2, "ENTITIES")
}

// Vertex2D is one (x, y) pair of a polyline, with an optional elevation.
type Vertex2D struct {
	X, Y, Elevation float64
}

// Polyline writes a POLYLINE entity on the given layer from verts. closed
// sets DXF group 70 (polyline flag) to 1 when the polyline forms a closed
// ring, matching contour rings and cliff loops.
func (d *Writer) Polyline(layer string, verts []Vertex2D, closed bool) {
	d.line(0, "POLYLINE")
	d.line(8, layer)
	d.line(66, "1")
	if closed {
		d.line(70, "1")
	} else {
		d.line(70, "0")
	}
	for _, v := range verts {
		d.line(0, "VERTEX")
		d.line(8, layer)
		d.lineF(10, v.X)
		d.lineF(20, v.Y)
		d.lineF(38, v.Elevation)
	}
	d.line(0, "SEQEND")
}

// Point writes a POINT entity at (x, y) with the given style code (DXF
// group 50, used here as an angle/style marker for knoll pin symbols).
func (d *Writer) Point(layer string, x, y, style float64) {
	d.line(0, "POINT")
	d.line(8, layer)
	d.lineF(10, x)
	d.lineF(20, y)
	d.lineF(50, style)
}

// Close writes ENDSEC/EOF and flushes the underlying writer.
func (d *Writer) Close() error {
	d.line(0, "ENDSEC")
	d.line(0, "EOF")
	if d.err != nil {
		return fmt.Errorf("dxfio: write: %w", d.err)
	}
	if err := d.w.Flush(); err != nil {
		return fmt.Errorf("dxfio: flush: %w", err)
	}
	return nil
}
