package workspace

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateThenOpenRoundTrip(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)

	w, err := ws.Create("scratch.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := ws.Open("scratch.bin")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestPathJoinsDir(t *testing.T) {
	dir := t.TempDir()
	ws, err := New(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "foo.xyz"), ws.Path("foo.xyz"))
}

func TestRemoveMissingFileIsNotError(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, ws.Remove("does-not-exist"))
}

func TestCreateSeekableAllowsPatchingHeader(t *testing.T) {
	ws, err := New(t.TempDir())
	require.NoError(t, err)

	f, err := ws.CreateSeekable("patchable.bin")
	require.NoError(t, err)
	_, err = f.Write([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)
	_, err = f.Write([]byte{1})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := ws.Open("patchable.bin")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 0, 0, 0}, data)
}
