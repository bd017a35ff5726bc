package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/pipeline"
)

var fullCmd = &cobra.Command{
	Use:   "full [input.xyz]",
	Short: "Run the entire pipeline, convert through compose, for one tile workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFull,
}

func init() {
	rootCmd.AddCommand(fullCmd)
}

func runFull(c *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("full: %w", err)
	}

	opt := pipeline.Options{}
	if len(args) == 1 {
		opt.InputXYZ = args[0]
	}

	if err := pipeline.RunTile(context.Background(), viper.GetString("output-dir"), cfg, opt); err != nil {
		return fmt.Errorf("full: %w", err)
	}

	logger.Info("completed full pipeline run", "workspace", viper.GetString("output-dir"))
	return nil
}
