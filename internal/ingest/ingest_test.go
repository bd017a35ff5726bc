package ingest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/haltia-gis/terrainmap/internal/record"
	"github.com/stretchr/testify/require"
)

type seekBuffer struct {
	buf *bytes.Buffer
	pos int64
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if int(s.pos) < s.buf.Len() {
		n := copy(s.buf.Bytes()[s.pos:], p)
		if n < len(p) {
			s.buf.Write(p[n:])
		}
		s.pos += int64(len(p))
		return len(p), nil
	}
	n, err := s.buf.Write(p)
	s.pos += int64(n)
	return n, err
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = offset
	case 1:
		s.pos += offset
	case 2:
		s.pos = int64(s.buf.Len()) + offset
	}
	return s.pos, nil
}

func TestTextSourceParsesFullRecord(t *testing.T) {
	src := NewTextSource(strings.NewReader("1.5 2.5 3.5 2 3 1\n"))
	p, ok, err := src.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, record.Point{X: 1.5, Y: 2.5, Z: 3.5, Classification: 2, NumberOfReturns: 3, ReturnNumber: 1}, p)

	_, ok, err = src.Next()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTextSourceDefaultsReturnFields(t *testing.T) {
	src := NewTextSource(strings.NewReader("0 0 0\n"))
	p, ok, err := src.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, p.NumberOfReturns)
	require.EqualValues(t, 1, p.ReturnNumber)
}

func TestTextSourceSkipsBlankLines(t *testing.T) {
	src := NewTextSource(strings.NewReader("\n1 2 3\n\n4 5 6\n"))
	var pts []record.Point
	for {
		p, ok, err := src.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		pts = append(pts, p)
	}
	require.Len(t, pts, 2)
}

func TestTextSourceErrorsOnMalformedLine(t *testing.T) {
	src := NewTextSource(strings.NewReader("only-one-field\n"))
	_, _, err := src.Next()
	require.Error(t, err)
}

func TestConvertAppliesUnitConversionAndOffset(t *testing.T) {
	src := NewTextSource(strings.NewReader("1 2 3\n"))
	sb := &seekBuffer{buf: &bytes.Buffer{}}
	w := record.NewWriter(sb)

	require.NoError(t, Convert(src, w, Options{XFactor: 2, YFactor: 2, ZFactor: 10, ZOffset: 5}))
	require.NoError(t, w.Close())

	r, err := record.NewReader(bytes.NewReader(sb.buf.Bytes()))
	require.NoError(t, err)
	p, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2.0, p.X)
	require.Equal(t, 4.0, p.Y)
	require.Equal(t, 35.0, p.Z)
}

func TestConvertNoThinningKeepsAllPoints(t *testing.T) {
	src := NewTextSource(strings.NewReader("1 1 1\n2 2 2\n3 3 3\n"))
	sb := &seekBuffer{buf: &bytes.Buffer{}}
	w := record.NewWriter(sb)
	require.NoError(t, Convert(src, w, Options{ThinFactor: 1}))
	require.NoError(t, w.Close())
	require.EqualValues(t, 3, w.Count())
}
