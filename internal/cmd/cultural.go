package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/cultural"
	"github.com/haltia-gis/terrainmap/internal/dxfio"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

var culturalLayerField string

var culturalCmd = &cobra.Command{
	Use:   "cultural <input.shp>",
	Short: "Convert a cultural-features shapefile into a DXF layer",
	Args:  cobra.ExactArgs(1),
	RunE:  runCultural,
}

func init() {
	culturalCmd.Flags().StringVar(&culturalLayerField, "layer-field", "", "shapefile attribute column naming each record's DXF layer")
	rootCmd.AddCommand(culturalCmd)
}

func runCultural(c *cobra.Command, args []string) error {
	ws, err := workspace.New(viper.GetString("output-dir"))
	if err != nil {
		return fmt.Errorf("cultural: %w", err)
	}

	out, err := ws.Create("cultural.dxf")
	if err != nil {
		return fmt.Errorf("cultural: %w", err)
	}
	defer out.Close()

	w := dxfio.NewWriter(out)
	w.Header(0, 0, 0, 0)
	if err := cultural.Convert(ws.Path(args[0]), w, cultural.Options{LayerField: culturalLayerField}); err != nil {
		return fmt.Errorf("cultural: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("cultural: %w", err)
	}

	logger.Info("converted cultural features", "source", args[0])
	return nil
}
