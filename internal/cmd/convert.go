package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/ingest"
	"github.com/haltia-gis/terrainmap/internal/record"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

var convertCmd = &cobra.Command{
	Use:   "convert <input.xyz>",
	Short: "Convert a whitespace-delimited XYZ point file into the internal record stream",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
}

func runConvert(c *cobra.Command, args []string) error {
	ws, err := workspace.New(viper.GetString("output-dir"))
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	in, err := ws.Open(args[0])
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	defer in.Close()

	out, err := ws.CreateSeekable("points.bin")
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	defer out.Close()

	src := ingest.NewTextSource(in)
	w := record.NewWriter(out)
	opt := ingest.Options{
		ThinFactor: cfg.ThinFactor,
		XFactor:    cfg.XFactor,
		YFactor:    cfg.YFactor,
		ZFactor:    cfg.ZFactor,
		ZOffset:    cfg.ZOffset,
	}
	if err := ingest.Convert(src, w, opt); err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("convert: %w", err)
	}

	logger.Info("converted points", "written", w.Count())
	return nil
}
