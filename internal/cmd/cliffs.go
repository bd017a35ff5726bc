package cmd

import (
	"fmt"
	"math/rand/v2"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/cliff"
	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/dxfio"
	"github.com/haltia-gis/terrainmap/internal/record"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

var cliffsCmd = &cobra.Command{
	Use:   "cliffs",
	Short: "Detect cliff lines from the workspace's ground points and heightmap",
	Args:  cobra.NoArgs,
	RunE:  runCliffs,
}

func init() {
	rootCmd.AddCommand(cliffsCmd)
}

func runCliffs(c *cobra.Command, args []string) error {
	ws, err := workspace.New(viper.GetString("output-dir"))
	if err != nil {
		return fmt.Errorf("cliffs: %w", err)
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("cliffs: %w", err)
	}

	hm, err := loadHeightmap(ws, "ground.hmap")
	if err != nil {
		return fmt.Errorf("cliffs: %w", err)
	}

	pts, err := readPoints(ws, "points.bin")
	if err != nil {
		return fmt.Errorf("cliffs: %w", err)
	}

	steep := steepness.Compute(hm, 3)
	opt := cliff.Options{
		Cliff1Limit:   cfg.Cliff1Limit,
		Cliff2Limit:   cfg.Cliff2Limit,
		CliffThin:     cfg.CliffThin,
		SteepFactor:   cfg.CliffSteepFactor,
		FlatPlace:     cfg.CliffFlatPlace,
		NoSmallCliffs: cfg.CliffNoSmallCliffs,
	}

	cliff2, cliff3, cliff4 := cliff.Detect(pts, hm, steep, opt, rand.Float64)

	out, err := ws.Create("cliffs.dxf")
	if err != nil {
		return fmt.Errorf("cliffs: %w", err)
	}
	defer out.Close()

	xmin, ymin := hm.XOffset, hm.YOffset
	xmax := hm.WorldX(hm.W - 1)
	ymax := hm.WorldY(hm.H - 1)

	w := dxfio.NewWriter(out)
	w.Header(xmin, ymin, xmax, ymax)
	writeCliffSegments(w, "cliff2", cliff2)
	writeCliffSegments(w, "cliff3", cliff3)
	writeCliffSegments(w, "cliff4", cliff4)
	if err := w.Close(); err != nil {
		return fmt.Errorf("cliffs: %w", err)
	}

	logger.Info("detected cliffs", "cliff2", len(cliff2), "cliff3", len(cliff3), "cliff4", len(cliff4))
	return nil
}

func writeCliffSegments(w *dxfio.Writer, layer string, segs []cliff.Segment) {
	for _, s := range segs {
		verts := []dxfio.Vertex2D{{X: s.X1, Y: s.Y1}, {X: s.X2, Y: s.Y2}}
		w.Polyline(layer, verts, false)
	}
}

// readPoints drains an entire record stream into memory. Cliff detection
// needs random access across the whole point cloud for its cell-grid
// binning pass, so streaming point-by-point would only move the buffering
// problem rather than remove it.
func readPoints(ws *workspace.Workspace, name string) ([]record.Point, error) {
	f, err := ws.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, err := record.NewReader(f)
	if err != nil {
		return nil, err
	}
	pts := make([]record.Point, 0, r.Total())
	for {
		p, ok, err := r.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		pts = append(pts, p)
	}
	return pts, nil
}
