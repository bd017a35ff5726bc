package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/rasterize"
	"github.com/haltia-gis/terrainmap/internal/record"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

var rasterizeCmd = &cobra.Command{
	Use:   "rasterize",
	Short: "Rasterize the workspace's point record stream into a ground heightmap",
	Args:  cobra.NoArgs,
	RunE:  runRasterize,
}

func init() {
	rootCmd.AddCommand(rasterizeCmd)
}

func runRasterize(c *cobra.Command, args []string) error {
	ws, err := workspace.New(viper.GetString("output-dir"))
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}

	in, err := ws.Open("points.bin")
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}
	defer in.Close()

	r, err := record.NewReader(in)
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}

	hm, err := rasterize.Rasterize(r, rasterize.Options{
		ScaleFactor:     cfg.ScaleFactor,
		ContourInterval: cfg.ContourInterval,
		WaterClass:      cfg.WaterClass,
		GroundOnly:      !cfg.DetectBuildings,
	})
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}

	out, err := ws.Create("ground.hmap")
	if err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}
	defer out.Close()

	if err := hm.Write(out); err != nil {
		return fmt.Errorf("rasterize: %w", err)
	}

	logger.Info("rasterized heightmap", "width", hm.W, "height", hm.H)
	return nil
}

// loadHeightmap is a small shared helper for subcommands downstream of rasterize.
func loadHeightmap(ws *workspace.Workspace, name string) (*heightmap.Map, error) {
	f, err := ws.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return heightmap.Read(f)
}

// writeHeightmap is the write-side counterpart used by every stage that
// produces a new heightmap rather than a vector or raster output file.
func writeHeightmap(ws *workspace.Workspace, name string, hm *heightmap.Map) error {
	f, err := ws.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return hm.Write(f)
}
