// Package record implements the internal point-cloud binary record stream:
// a compact, re-readable intermediate format written once during ingest and
// read many times by the later pipeline stages.
package record

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// magic identifies the record stream format on disk.
var magic = [4]byte{'X', 'Y', 'Z', 'B'}

const recordSize = 3*8 + 3 // three float64 + three uint8

// Point is a single LiDAR sample: position, elevation, and per-point
// classification/return metadata.
type Point struct {
	X, Y, Z         float64
	Classification  uint8
	NumberOfReturns uint8
	ReturnNumber    uint8
}

// IsFirstReturn reports whether this point is the first return of its pulse.
func (p Point) IsFirstReturn() bool { return p.ReturnNumber == 1 }

// IsLastReturn reports whether this point is the last return of its pulse.
func (p Point) IsLastReturn() bool { return p.ReturnNumber == p.NumberOfReturns }

// IsOnlyReturn reports whether this point is both the first and last return.
func (p Point) IsOnlyReturn() bool { return p.NumberOfReturns == 1 }

// Writer appends points to a record stream. The record count is written as
// a placeholder on the first Write and patched in on Close, so the stream
// stays consistent even for writers that abandon partway through an error
// path as long as Close is always called.
type Writer struct {
	w       io.WriteSeeker
	bw      *bufio.Writer
	count   uint64
	started bool
	closed  bool
}

// NewWriter wraps w, a seekable destination, as a record stream writer.
func NewWriter(w io.WriteSeeker) *Writer {
	return &Writer{w: w, bw: bufio.NewWriter(w)}
}

func (w *Writer) writeHeader() error {
	if _, err := w.bw.Write(magic[:]); err != nil {
		return fmt.Errorf("record: write magic: %w", err)
	}
	// Placeholder count, patched in Close.
	if err := binary.Write(w.bw, binary.NativeEndian, uint64(0)); err != nil {
		return fmt.Errorf("record: write count placeholder: %w", err)
	}
	w.started = true
	return nil
}

// Write appends a single point to the stream.
func (w *Writer) Write(p Point) error {
	if !w.started {
		if err := w.writeHeader(); err != nil {
			return err
		}
	}
	var buf [recordSize]byte
	binary.NativeEndian.PutUint64(buf[0:8], math.Float64bits(p.X))
	binary.NativeEndian.PutUint64(buf[8:16], math.Float64bits(p.Y))
	binary.NativeEndian.PutUint64(buf[16:24], math.Float64bits(p.Z))
	buf[24] = p.Classification
	buf[25] = p.NumberOfReturns
	buf[26] = p.ReturnNumber
	if _, err := w.bw.Write(buf[:]); err != nil {
		return fmt.Errorf("record: write record: %w", err)
	}
	w.count++
	return nil
}

// Close flushes buffered data and patches the record count into the header.
// It must be called exactly once, even if no points were written.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if !w.started {
		if err := w.writeHeader(); err != nil {
			return err
		}
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("record: flush: %w", err)
	}
	if _, err := w.w.Seek(int64(len(magic)), io.SeekStart); err != nil {
		return fmt.Errorf("record: seek to patch count: %w", err)
	}
	if err := binary.Write(w.w, binary.NativeEndian, w.count); err != nil {
		return fmt.Errorf("record: patch count: %w", err)
	}
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() uint64 { return w.count }

// Reader sequentially reads points from a record stream previously produced
// by Writer.
type Reader struct {
	r     *bufio.Reader
	total uint64
	read  uint64
}

// NewReader validates the stream header and returns a Reader positioned at
// the first record.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	var got [4]byte
	if _, err := io.ReadFull(br, got[:]); err != nil {
		return nil, fmt.Errorf("record: read magic: %w", err)
	}
	if got != magic {
		return nil, fmt.Errorf("record: bad magic %q", got)
	}
	var total uint64
	if err := binary.Read(br, binary.NativeEndian, &total); err != nil {
		return nil, fmt.Errorf("record: read count: %w", err)
	}
	return &Reader{r: br, total: total}, nil
}

// Total returns the number of records the stream header declares.
func (r *Reader) Total() uint64 { return r.total }

// Next returns the next point, or ok=false once every declared record has
// been read.
func (r *Reader) Next() (p Point, ok bool, err error) {
	if r.read >= r.total {
		return Point{}, false, nil
	}
	var buf [recordSize]byte
	if _, err := io.ReadFull(r.r, buf[:]); err != nil {
		return Point{}, false, fmt.Errorf("record: read record %d: %w", r.read, err)
	}
	p.X = math.Float64frombits(binary.NativeEndian.Uint64(buf[0:8]))
	p.Y = math.Float64frombits(binary.NativeEndian.Uint64(buf[8:16]))
	p.Z = math.Float64frombits(binary.NativeEndian.Uint64(buf[16:24]))
	p.Classification = buf[24]
	p.NumberOfReturns = buf[25]
	p.ReturnNumber = buf[26]
	r.read++
	return p, true, nil
}
