// Package workspace provides the scratch-file filesystem each tile pipeline
// run reads and writes intermediate artifacts through.
package workspace

import (
	"fmt"
	"image"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
)

// Filesystem is the narrow collaborator interface the pipeline stages
// depend on, so tests can substitute an in-memory implementation instead of
// touching disk.
type Filesystem interface {
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
}

// seekableFile is implemented by *os.File; record.Writer needs Seek to
// patch its header after writing.
type seekableFile interface {
	io.WriteCloser
	io.Seeker
}

// Workspace roots every scratch file read/write at a single tile directory.
type Workspace struct {
	dir string
}

// New creates (if needed) and returns a Workspace rooted at dir.
func New(dir string) (*Workspace, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace root directory.
func (w *Workspace) Dir() string { return w.dir }

// Path joins name onto the workspace root directory.
func (w *Workspace) Path(name string) string { return filepath.Join(w.dir, name) }

// Open opens a scratch file for reading.
func (w *Workspace) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("workspace: open %s: %w", name, err)
	}
	return f, nil
}

// Create opens a scratch file for writing, truncating any existing content.
func (w *Workspace) Create(name string) (io.WriteCloser, error) {
	f, err := os.Create(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", name, err)
	}
	return f, nil
}

// CreateSeekable opens a scratch file for writing and returns it as a
// seekable writer, for collaborators (like record.Writer) that patch a
// header after the body is written.
func (w *Workspace) CreateSeekable(name string) (seekableFile, error) {
	f, err := os.Create(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", name, err)
	}
	return f, nil
}

// DecodeImage opens name and decodes it as an image using the standard
// library's registered decoders (PNG is imported for its side effect of
// registering itself).
func (w *Workspace) DecodeImage(name string) (image.Image, error) {
	f, err := w.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("workspace: decode image %s: %w", name, err)
	}
	return img, nil
}

// Remove deletes a scratch file. It is not an error if the file is already
// absent, matching the reference implementation's "best effort" temp-file
// cleanup.
func (w *Workspace) Remove(name string) error {
	if err := os.Remove(w.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("workspace: remove %s: %w", name, err)
	}
	return nil
}
