// Package ingest converts raw point-cloud sources into the internal
// record stream every later pipeline stage reads from.
package ingest

import (
	"bufio"
	"fmt"
	"io"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/haltia-gis/terrainmap/internal/record"
)

// PointSource yields one point at a time until exhausted. Concrete LAS/LAZ
// decoders implement this interface outside the core pipeline; TextSource
// below is the in-repo reference implementation for whitespace-separated
// XYZ text files.
type PointSource interface {
	Next() (record.Point, bool, error)
}

// TextSource reads points from whitespace-separated text lines of the form
// "x y z [classification [numberOfReturns [returnNumber]]]".
type TextSource struct {
	sc *bufio.Scanner
}

// NewTextSource wraps r as a PointSource.
func NewTextSource(r io.Reader) *TextSource {
	return &TextSource{sc: bufio.NewScanner(r)}
}

func (s *TextSource) Next() (record.Point, bool, error) {
	for s.sc.Scan() {
		line := strings.TrimSpace(s.sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return record.Point{}, false, fmt.Errorf("ingest: malformed line %q: need at least x y z", line)
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return record.Point{}, false, fmt.Errorf("ingest: parse x: %w", err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return record.Point{}, false, fmt.Errorf("ingest: parse y: %w", err)
		}
		z, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return record.Point{}, false, fmt.Errorf("ingest: parse z: %w", err)
		}
		p := record.Point{X: x, Y: y, Z: z, NumberOfReturns: 1, ReturnNumber: 1}
		if len(fields) > 3 {
			v, err := strconv.ParseUint(fields[3], 10, 8)
			if err != nil {
				return record.Point{}, false, fmt.Errorf("ingest: parse classification: %w", err)
			}
			p.Classification = uint8(v)
		}
		if len(fields) > 4 {
			v, err := strconv.ParseUint(fields[4], 10, 8)
			if err != nil {
				return record.Point{}, false, fmt.Errorf("ingest: parse number of returns: %w", err)
			}
			p.NumberOfReturns = uint8(v)
		}
		if len(fields) > 5 {
			v, err := strconv.ParseUint(fields[5], 10, 8)
			if err != nil {
				return record.Point{}, false, fmt.Errorf("ingest: parse return number: %w", err)
			}
			p.ReturnNumber = uint8(v)
		}
		return p, true, nil
	}
	if err := s.sc.Err(); err != nil {
		return record.Point{}, false, fmt.Errorf("ingest: scan: %w", err)
	}
	return record.Point{}, false, nil
}

// Options configures a Convert pass.
type Options struct {
	ThinFactor                 float64 // keep-probability in (0, 1]; 1 disables thinning
	XFactor, YFactor, ZFactor  float64 // coordinate unit-conversion multipliers
	ZOffset                    float64
}

// Convert streams every point from src through the configured unit
// conversion and thinning, writing survivors to dst.
func Convert(src PointSource, dst *record.Writer, opt Options) error {
	xf, yf, zf := opt.XFactor, opt.YFactor, opt.ZFactor
	if xf == 0 {
		xf = 1
	}
	if yf == 0 {
		yf = 1
	}
	if zf == 0 {
		zf = 1
	}
	thin := opt.ThinFactor
	if thin <= 0 || thin > 1 {
		thin = 1
	}

	for {
		p, ok, err := src.Next()
		if err != nil {
			return fmt.Errorf("ingest: read source: %w", err)
		}
		if !ok {
			return nil
		}
		if thin < 1 && rand.Float64() >= thin {
			continue
		}
		p.X *= xf
		p.Y *= yf
		p.Z = p.Z*zf + opt.ZOffset
		if err := dst.Write(p); err != nil {
			return fmt.Errorf("ingest: write record: %w", err)
		}
	}
}
