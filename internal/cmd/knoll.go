package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/knoll"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

var knollCmd = &cobra.Command{
	Use:   "knoll",
	Short: "Detect knolls in the ground heightmap and deform it to sharpen their tops",
	Args:  cobra.NoArgs,
	RunE:  runKnoll,
}

func init() {
	rootCmd.AddCommand(knollCmd)
}

func runKnoll(c *cobra.Command, args []string) error {
	ws, err := workspace.New(viper.GetString("output-dir"))
	if err != nil {
		return fmt.Errorf("knoll: %w", err)
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("knoll: %w", err)
	}

	hm, err := loadHeightmap(ws, "ground.hmap")
	if err != nil {
		return fmt.Errorf("knoll: %w", err)
	}

	if cfg.SkipKnollDetection {
		logger.Info("knoll detection disabled, copying ground heightmap through unchanged")
		return writeHeightmap(ws, "deformed.hmap", hm)
	}

	levels := contour.Extract(hm, contour.Options{Interval: cfg.ContourInterval / 2})
	rings := knoll.RingsFromLevels(levels)
	tops, candidates := knoll.Classify(rings)
	pins := knoll.SelectPins(tops, candidates, cfg.ContourInterval/2)
	steep := steepness.Compute(hm, 2)

	deformed := knoll.Deform(hm, pins, steep, cfg.ContourInterval)

	if err := writeHeightmap(ws, "deformed.hmap", deformed); err != nil {
		return fmt.Errorf("knoll: %w", err)
	}

	logger.Info("deformed heightmap for knolls", "pins", len(pins))
	return nil
}
