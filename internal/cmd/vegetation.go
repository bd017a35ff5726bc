package cmd

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/vegetation"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

var vegetationCmd = &cobra.Command{
	Use:   "vegetation",
	Short: "Render green, yellow, water, and undergrowth rasters from the workspace's points",
	Args:  cobra.NoArgs,
	RunE:  runVegetation,
}

func init() {
	rootCmd.AddCommand(vegetationCmd)
}

func runVegetation(c *cobra.Command, args []string) error {
	ws, err := workspace.New(viper.GetString("output-dir"))
	if err != nil {
		return fmt.Errorf("vegetation: %w", err)
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("vegetation: %w", err)
	}

	hm, err := loadHeightmap(ws, "ground.hmap")
	if err != nil {
		return fmt.Errorf("vegetation: %w", err)
	}
	pts, err := readPoints(ws, "points.bin")
	if err != nil {
		return fmt.Errorf("vegetation: %w", err)
	}

	rasters := vegetation.Build(hm, pts, cfg)

	if err := writePNG(ws, "green.png", rasters.Green); err != nil {
		return fmt.Errorf("vegetation: %w", err)
	}
	if err := writePNG(ws, "yellow.png", rasters.Yellow); err != nil {
		return fmt.Errorf("vegetation: %w", err)
	}
	if err := writePNG(ws, "water.png", rasters.Water); err != nil {
		return fmt.Errorf("vegetation: %w", err)
	}
	if err := writePNG(ws, "undergrowth.png", rasters.Undergrowth); err != nil {
		return fmt.Errorf("vegetation: %w", err)
	}

	logger.Info("rendered vegetation rasters", "undergrowthScale", rasters.UndergrowthScale)
	return nil
}

func writePNG(ws *workspace.Workspace, name string, img image.Image) error {
	if img == nil {
		return nil
	}
	f, err := ws.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return encodePNG(f, img)
}

func encodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
