package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/batch"
	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/pipeline"
	"github.com/haltia-gis/terrainmap/internal/tilesink"
)

var (
	batchWorkers int
	batchForce   bool
	batchSink    string
)

var batchCmd = &cobra.Command{
	Use:   "batch <tile-dir>...",
	Short: "Run the full pipeline across many tile workspace directories concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 4, "number of tile workspaces to process concurrently")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "reprocess tiles even if a previous map.png exists")
	batchCmd.Flags().StringVar(&batchSink, "sink", "", "optional path to a sqlite archive to collect every tile's composed map, keyed by workspace name")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(c *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}

	jobs := make([]batch.Job, len(args))
	for i, dir := range args {
		jobs[i] = batch.Job{WorkspaceDir: dir, Force: batchForce}
	}

	runner := pipeline.Runner{Cfg: cfg}
	pool := batch.New(batch.Config{
		Workers: batchWorkers,
		Runner:  runner,
		OnProgress: func(completed, total, failed int) {
			logger.Info("batch progress", "completed", completed, "total", total, "failed", failed)
		},
	})

	results := pool.Run(context.Background(), jobs)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("tile failed", "workspace", r.Job.WorkspaceDir, "err", r.Err)
		}
	}

	if batchSink != "" {
		if err := collectIntoSink(batchSink, results); err != nil {
			return fmt.Errorf("batch: %w", err)
		}
	}

	logger.Info("batch complete", "tiles", len(jobs), "failed", failed)
	if failed > 0 {
		return fmt.Errorf("batch: %d of %d tiles failed", failed, len(jobs))
	}
	return nil
}

// collectIntoSink gathers every successfully composed map.png into one
// sqlite archive, keyed by workspace directory name so a later run can look
// up a specific tile's output without walking the filesystem.
func collectIntoSink(path string, results []batch.Result) error {
	sink, err := tilesink.New(path, tilesink.Metadata{
		Name:   "terrainmap-batch",
		Format: "png",
		Type:   "overlay",
	})
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.Err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.Job.WorkspaceDir, "map.png"))
		if err != nil {
			continue
		}
		key := filepath.Base(filepath.Clean(r.Job.WorkspaceDir))
		if err := sink.WriteEntry(key, data); err != nil {
			sink.Close()
			return err
		}
	}

	return sink.Close()
}
