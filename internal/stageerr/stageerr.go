// Package stageerr defines the error taxonomy shared by every pipeline
// stage: Config, Io, Format, InvariantViolated, and Degenerate.
package stageerr

import "fmt"

// Kind classifies a stage failure.
type Kind int

const (
	// Config marks a bad or missing configuration value.
	Config Kind = iota
	// IO marks a failure reading or writing a file.
	IO
	// Format marks malformed input data (bad magic, truncated record, ...).
	Format
	// InvariantViolated marks a pipeline invariant failing at runtime (a
	// NaN heightmap cell, an unterminated polyline, ...).
	InvariantViolated
	// Degenerate marks a tile whose input data is too sparse or uniform to
	// produce meaningful output (e.g. no points of the classification the
	// stage needs).
	Degenerate
)

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case IO:
		return "io"
	case Format:
		return "format"
	case InvariantViolated:
		return "invariant_violated"
	case Degenerate:
		return "degenerate"
	default:
		return "unknown"
	}
}

// Coord is an optional (x, y) location attached to InvariantViolated errors,
// pinpointing the offending cell or vertex.
type Coord struct {
	X, Y float64
}

// StageError wraps an underlying error with the stage name and failure
// kind, so a batch driver can log and continue past the error without
// losing the other tiles in the run.
type StageError struct {
	Stage string
	Kind  Kind
	Coord *Coord
	Err   error
}

func (e *StageError) Error() string {
	if e.Coord != nil {
		return fmt.Sprintf("%s: %s at (%.3f, %.3f): %v", e.Stage, e.Kind, e.Coord.X, e.Coord.Y, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// New wraps err as a StageError for stage with the given kind.
func New(stage string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// NewAt wraps err as an InvariantViolated StageError carrying the offending
// coordinate.
func NewAt(stage string, x, y float64, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Kind: InvariantViolated, Coord: &Coord{X: x, Y: y}, Err: err}
}
