package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/rasterize"
	"github.com/haltia-gis/terrainmap/internal/record"
	"github.com/haltia-gis/terrainmap/internal/stageerr"
	"github.com/stretchr/testify/require"
)

// writeFlatPlane writes a 10x10 grid of ground-classified points at 1m
// spacing, all at z=50.0, matching spec.md §8 scenario A.
func writeFlatPlane(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	w := record.NewWriter(f)
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			require.NoError(t, w.Write(record.Point{
				X: float64(x), Y: float64(y), Z: 50.0,
				Classification: 2, NumberOfReturns: 1, ReturnNumber: 1,
			}))
		}
	}
	require.NoError(t, w.Close())
}

func flatPlaneConfig() config.Config {
	cfg := config.Default()
	cfg.ScaleFactor = 0.5
	cfg.ContourInterval = 5
	cfg.Cliff1Limit = 1.0
	cfg.Cliff2Limit = 2.0
	return cfg
}

func TestRunTileFlatPlaneProducesNoContoursOrCliffs(t *testing.T) {
	dir := t.TempDir()
	writeFlatPlane(t, filepath.Join(dir, "points.bin"))

	err := RunTile(context.Background(), dir, flatPlaneConfig(), Options{})
	require.NoError(t, err)

	for _, name := range []string{"ground.hmap", "deformed.hmap", "contours.dxf", "cliffs.dxf", "map.png", "map.pgw"} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		require.NoError(t, statErr, "expected %s to be written", name)
	}

	hf, err := os.Open(filepath.Join(dir, "ground.hmap"))
	require.NoError(t, err)
	defer hf.Close()
	hm, err := heightmap.Read(hf)
	require.NoError(t, err)
	require.False(t, hm.HasNaN())
	for x := 0; x < hm.W; x++ {
		for y := 0; y < hm.H; y++ {
			require.InDelta(t, 50.0, hm.At(x, y), 0.05, "a flat plane's heightmap should stay within the banding guard's nudge of the source elevation")
		}
	}

	dxf, err := os.ReadFile(filepath.Join(dir, "contours.dxf"))
	require.NoError(t, err)
	require.NotContains(t, string(dxf), "POLYLINE", "a flat plane has no elevation change, so no contour polylines should be emitted")

	cliffDxf, err := os.ReadFile(filepath.Join(dir, "cliffs.dxf"))
	require.NoError(t, err)
	require.NotContains(t, string(cliffDxf), "POLYLINE", "a flat plane has zero steepness, so no cliff segments should be emitted")
}

func TestRunTileWritesExtentsMatchingHeightmapBounds(t *testing.T) {
	dir := t.TempDir()
	writeFlatPlane(t, filepath.Join(dir, "points.bin"))

	require.NoError(t, RunTile(context.Background(), dir, flatPlaneConfig(), Options{}))

	dxf, err := os.ReadFile(filepath.Join(dir, "contours.dxf"))
	require.NoError(t, err)
	require.Contains(t, string(dxf), "$EXTMIN")
	require.Contains(t, string(dxf), "$EXTMAX")
}

func TestRunTileConvertsTextXYZBeforeRasterizing(t *testing.T) {
	dir := t.TempDir()
	xyz := "0 0 50.0 2 1 1\n1 0 50.0 2 1 1\n0 1 50.0 2 1 1\n1 1 50.0 2 1 1\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "in.xyz"), []byte(xyz), 0o644))

	err := RunTile(context.Background(), dir, flatPlaneConfig(), Options{InputXYZ: "in.xyz"})
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "points.bin"))
	require.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(dir, "map.png"))
	require.NoError(t, statErr)
}

func TestRunTileWithNoGroundPointsReturnsDegenerate(t *testing.T) {
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, "points.bin"))
	require.NoError(t, err)
	w := record.NewWriter(f)
	require.NoError(t, w.Write(record.Point{
		X: 0, Y: 0, Z: 50.0,
		Classification: 5, NumberOfReturns: 1, ReturnNumber: 1, // vegetation, not ground
	}))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	err = RunTile(context.Background(), dir, flatPlaneConfig(), Options{})
	require.Error(t, err)

	var stageErr *stageerr.StageError
	require.True(t, errors.As(err, &stageErr), "expected a *stageerr.StageError, got %T", err)
	require.Equal(t, stageerr.Degenerate, stageErr.Kind)
	require.ErrorIs(t, err, rasterize.ErrDegenerate)
}

func TestRunTileSkipKnollDetectionBypassesKnollStage(t *testing.T) {
	dir := t.TempDir()
	writeFlatPlane(t, filepath.Join(dir, "points.bin"))

	cfg := flatPlaneConfig()
	cfg.SkipKnollDetection = true
	require.NoError(t, RunTile(context.Background(), dir, cfg, Options{}))

	groundRaw, err := os.ReadFile(filepath.Join(dir, "ground.hmap"))
	require.NoError(t, err)
	deformedRaw, err := os.ReadFile(filepath.Join(dir, "deformed.hmap"))
	require.NoError(t, err)
	require.NotEmpty(t, groundRaw)
	require.Equal(t, groundRaw, deformedRaw, "skipping knoll detection should pass the base heightmap through unchanged")
}
