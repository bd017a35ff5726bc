package cmd

import (
	"fmt"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/haltia-gis/terrainmap/internal/cliff"
	"github.com/haltia-gis/terrainmap/internal/compose"
	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/smoothjoin"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

var composeCmd = &cobra.Command{
	Use:   "compose",
	Short: "Stack every rendered layer into the final map image and its world file",
	Args:  cobra.NoArgs,
	RunE:  runCompose,
}

func init() {
	rootCmd.AddCommand(composeCmd)
}

// featureColors maps smoothjoin layer names to the line colour they draw in
// the composed raster.
var featureColors = map[smoothjoin.Layer]color.NRGBA{
	smoothjoin.LayerContour:      {130, 60, 25, 255},
	smoothjoin.LayerIndex:        {130, 60, 25, 255},
	smoothjoin.LayerIntermed:     {130, 60, 25, 180},
	smoothjoin.LayerDepression:   {130, 60, 25, 255},
	smoothjoin.LayerUDepression:  {130, 60, 25, 255},
	smoothjoin.LayerDotKnoll:     {130, 60, 25, 255},
}

func runCompose(c *cobra.Command, args []string) error {
	ws, err := workspace.New(viper.GetString("output-dir"))
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	source := "ground.hmap"
	if _, err := os.Stat(ws.Path("deformed.hmap")); err == nil {
		source = "deformed.hmap"
	}
	hm, err := loadHeightmap(ws, source)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	canvas := compose.Canvas{
		Width:   hm.W,
		Height:  hm.H,
		OriginX: hm.XOffset,
		OriginY: hm.WorldY(hm.H - 1),
		Scale:   hm.Scale,
	}

	layers := make(map[string]compose.Layer)

	for _, name := range []string{"water", "green", "yellow"} {
		img, err := ws.DecodeImage(name + ".png")
		if err != nil {
			continue
		}
		layers[name] = compose.Layer{Name: name, Image: img, OriginX: hm.XOffset, OriginY: hm.WorldY(hm.H - 1), Scale: vegeScale(cfg)}
	}
	if img, err := ws.DecodeImage("undergrowth.png"); err == nil {
		layers["undergrowth"] = compose.Layer{Name: "undergrowth", Image: img, OriginX: hm.XOffset, OriginY: hm.WorldY(hm.H - 1), Scale: hm.Scale}
	}

	levels := contour.Extract(hm, contour.Options{Interval: cfg.ContourInterval})
	steep := steepness.Compute(hm, 2)
	jopt := smoothjoin.Options{
		Interval:         cfg.ContourInterval,
		IndexContours:    cfg.IndexContours,
		Smoothing:        cfg.Smoothing,
		Curviness:        cfg.Curviness,
		FormlineEnabled:  cfg.FormlineLevel > 0,
		InitialDotKnolls: cfg.InitialKnollThreshold,
		ScaleFactor:      cfg.ScaleFactor,
	}
	var features []smoothjoin.Feature
	for _, polys := range levels {
		features = append(features, smoothjoin.Process(hm, steep, polys, jopt)...)
	}
	contourRaster := compose.RasterizeFeatures(features, hm.W, hm.H, hm.XOffset, hm.WorldY(hm.H-1), hm.Scale, featureColors)
	layers["contours"] = compose.Layer{Name: "contours", Image: contourRaster, OriginX: hm.XOffset, OriginY: hm.WorldY(hm.H - 1), Scale: hm.Scale}

	if pts, err := readPoints(ws, "points.bin"); err == nil {
		copt := cliff.Options{
			Cliff1Limit:   cfg.Cliff1Limit,
			Cliff2Limit:   cfg.Cliff2Limit,
			CliffThin:     cfg.CliffThin,
			SteepFactor:   cfg.CliffSteepFactor,
			FlatPlace:     cfg.CliffFlatPlace,
			NoSmallCliffs: cfg.CliffNoSmallCliffs,
		}
		cliff2, cliff3, cliff4 := cliff.Detect(pts, hm, steepness.Compute(hm, 3), copt, rand.Float64)
		cliffRaster := compose.RasterizeFeatures(cliffFeatures(cliff2, cliff3, cliff4), hm.W, hm.H, hm.XOffset, hm.WorldY(hm.H-1), hm.Scale, cliffColors)
		layers["cliffs"] = compose.Layer{Name: "cliffs", Image: cliffRaster, OriginX: hm.XOffset, OriginY: hm.WorldY(hm.H - 1), Scale: hm.Scale}
	}

	final := compose.Compose(canvas, layers, compose.DefaultOrder)

	out, err := ws.Create("map.png")
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	if err := png.Encode(out, final); err != nil {
		out.Close()
		return fmt.Errorf("compose: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	pgw, err := ws.Create("map.pgw")
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	if err := compose.WritePGW(pgw, hm.Scale, hm.XOffset, hm.WorldY(hm.H-1)); err != nil {
		pgw.Close()
		return fmt.Errorf("compose: %w", err)
	}
	if err := pgw.Close(); err != nil {
		return fmt.Errorf("compose: %w", err)
	}

	logger.Info("composed final map", "width", hm.W, "height", hm.H, "layers", len(layers))
	return nil
}

func vegeScale(cfg config.Config) float64 {
	if cfg.GreenDetectSize > 0 {
		return cfg.GreenDetectSize
	}
	return 3
}

var cliffColors = map[smoothjoin.Layer]color.NRGBA{
	"cliff2": {0, 0, 0, 255},
	"cliff3": {0, 0, 0, 255},
	"cliff4": {0, 0, 0, 255},
}

// cliffFeatures adapts cliff.Segment slices into smoothjoin.Feature values
// so they can share compose.RasterizeFeatures with contour output.
func cliffFeatures(cliff2, cliff3, cliff4 []cliff.Segment) []smoothjoin.Feature {
	var out []smoothjoin.Feature
	add := func(layer smoothjoin.Layer, segs []cliff.Segment) {
		for _, s := range segs {
			out = append(out, smoothjoin.Feature{
				Verts: []contour.Vertex{{X: s.X1, Y: s.Y1}, {X: s.X2, Y: s.Y2}},
				Layer: layer,
			})
		}
	}
	add("cliff2", cliff2)
	add("cliff3", cliff3)
	add("cliff4", cliff4)
	return out
}
