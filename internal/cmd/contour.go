package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/dxfio"
	"github.com/haltia-gis/terrainmap/internal/smoothjoin"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

var contourCmd = &cobra.Command{
	Use:   "contour",
	Short: "Extract, join, and smooth contours from the workspace's ground heightmap",
	Args:  cobra.NoArgs,
	RunE:  runContour,
}

func init() {
	rootCmd.AddCommand(contourCmd)
}

func runContour(c *cobra.Command, args []string) error {
	ws, err := workspace.New(viper.GetString("output-dir"))
	if err != nil {
		return fmt.Errorf("contour: %w", err)
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("contour: %w", err)
	}

	source := "ground.hmap"
	if _, err := os.Stat(ws.Path("deformed.hmap")); err == nil {
		source = "deformed.hmap"
	}
	hm, err := loadHeightmap(ws, source)
	if err != nil {
		return fmt.Errorf("contour: %w", err)
	}

	levels := contour.Extract(hm, contour.Options{Interval: cfg.ContourInterval})
	steep := steepness.Compute(hm, 2)

	opt := smoothjoin.Options{
		Interval:         cfg.ContourInterval,
		IndexContours:    cfg.IndexContours,
		Smoothing:        cfg.Smoothing,
		Curviness:        cfg.Curviness,
		FormlineEnabled:  cfg.FormlineLevel > 0,
		InitialDotKnolls: cfg.InitialKnollThreshold,
		ScaleFactor:      cfg.ScaleFactor,
	}

	var all []smoothjoin.Feature
	for _, polys := range levels {
		all = append(all, smoothjoin.Process(hm, steep, polys, opt)...)
	}

	out, err := ws.Create("contours.dxf")
	if err != nil {
		return fmt.Errorf("contour: %w", err)
	}
	defer out.Close()

	xmin, ymin := hm.XOffset, hm.YOffset
	xmax := hm.WorldX(hm.W - 1)
	ymax := hm.WorldY(hm.H - 1)

	w := dxfio.NewWriter(out)
	w.Header(xmin, ymin, xmax, ymax)
	for _, f := range all {
		if len(f.Verts) == 0 {
			w.Point(string(f.Layer), f.Point.X, f.Point.Y, f.Elevation)
			continue
		}
		verts := make([]dxfio.Vertex2D, len(f.Verts))
		for i, v := range f.Verts {
			verts[i] = dxfio.Vertex2D{X: v.X, Y: v.Y, Elevation: v.Elevation}
		}
		w.Polyline(string(f.Layer), verts, f.Closed)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("contour: %w", err)
	}

	logger.Info("extracted contours", "features", len(all))
	return nil
}
