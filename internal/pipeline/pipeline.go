// Package pipeline runs the full convert-through-compose chain for one tile
// workspace as a single call, so both the "full" CLI subcommand and the
// batch driver in internal/batch can share one implementation instead of
// each re-deriving the stage order.
package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"

	"github.com/haltia-gis/terrainmap/internal/batch"
	"github.com/haltia-gis/terrainmap/internal/cliff"
	"github.com/haltia-gis/terrainmap/internal/compose"
	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/contour"
	"github.com/haltia-gis/terrainmap/internal/dxfio"
	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/ingest"
	"github.com/haltia-gis/terrainmap/internal/knoll"
	"github.com/haltia-gis/terrainmap/internal/rasterize"
	"github.com/haltia-gis/terrainmap/internal/record"
	"github.com/haltia-gis/terrainmap/internal/smoothjoin"
	"github.com/haltia-gis/terrainmap/internal/stageerr"
	"github.com/haltia-gis/terrainmap/internal/steepness"
	"github.com/haltia-gis/terrainmap/internal/vegetation"
	"github.com/haltia-gis/terrainmap/internal/workspace"
)

// Options configures one tile run beyond the shared Config bundle.
type Options struct {
	// InputXYZ, when set, names a whitespace-delimited XYZ file (relative
	// to the tile's workspace directory) to convert before rasterizing.
	// When empty, the workspace's points.bin is assumed to already exist.
	InputXYZ string
}

var cliffColors = map[smoothjoin.Layer]color.NRGBA{
	"cliff2": {0, 0, 0, 255},
	"cliff3": {0, 0, 0, 255},
	"cliff4": {0, 0, 0, 255},
}

var featureColors = map[smoothjoin.Layer]color.NRGBA{
	smoothjoin.LayerContour:     {130, 60, 25, 255},
	smoothjoin.LayerIndex:       {130, 60, 25, 255},
	smoothjoin.LayerIntermed:    {130, 60, 25, 180},
	smoothjoin.LayerDepression:  {130, 60, 25, 255},
	smoothjoin.LayerUDepression: {130, 60, 25, 255},
	smoothjoin.LayerDotKnoll:    {130, 60, 25, 255},
}

// RunTile drives one tile workspace through every stage, convert through
// compose, writing every intermediate and final file the individual CLI
// subcommands would. A failing stage returns a *stageerr.StageError rather
// than aborting the process, so a batch driver can log it and move on to
// the next tile.
func RunTile(ctx context.Context, dir string, cfg config.Config, opt Options) error {
	ws, err := workspace.New(dir)
	if err != nil {
		return stageerr.New("workspace", stageerr.IO, err)
	}

	if opt.InputXYZ != "" {
		if err := runConvert(ws, cfg, opt.InputXYZ); err != nil {
			return err
		}
	}

	hm, err := runRasterize(ws, cfg)
	if err != nil {
		return err
	}

	hm, err = runKnoll(ws, cfg, hm)
	if err != nil {
		return err
	}

	features, err := runContour(ws, cfg, hm)
	if err != nil {
		return err
	}

	pts, err := readPoints(ws)
	if err != nil {
		return stageerr.New("cliffs", stageerr.IO, err)
	}

	steep := steepness.Compute(hm, 3)
	cliff2, cliff3, cliff4, err := runCliffs(ws, cfg, hm, steep, pts)
	if err != nil {
		return err
	}

	if err := runVegetation(ws, cfg, hm, pts); err != nil {
		return err
	}

	if err := runCompose(ws, hm, features, cliff2, cliff3, cliff4, cfg); err != nil {
		return err
	}

	if ctx.Err() != nil {
		return stageerr.New("pipeline", stageerr.IO, ctx.Err())
	}
	return nil
}

func runConvert(ws *workspace.Workspace, cfg config.Config, input string) error {
	in, err := ws.Open(input)
	if err != nil {
		return stageerr.New("convert", stageerr.IO, err)
	}
	defer in.Close()

	out, err := ws.CreateSeekable("points.bin")
	if err != nil {
		return stageerr.New("convert", stageerr.IO, err)
	}
	defer out.Close()

	src := ingest.NewTextSource(in)
	w := record.NewWriter(out)
	iopt := ingest.Options{
		ThinFactor: cfg.ThinFactor,
		XFactor:    cfg.XFactor,
		YFactor:    cfg.YFactor,
		ZFactor:    cfg.ZFactor,
		ZOffset:    cfg.ZOffset,
	}
	if err := ingest.Convert(src, w, iopt); err != nil {
		return stageerr.New("convert", stageerr.Format, err)
	}
	if err := w.Close(); err != nil {
		return stageerr.New("convert", stageerr.IO, err)
	}
	return nil
}

func runRasterize(ws *workspace.Workspace, cfg config.Config) (*heightmap.Map, error) {
	in, err := ws.Open("points.bin")
	if err != nil {
		return nil, stageerr.New("rasterize", stageerr.IO, err)
	}
	defer in.Close()

	r, err := record.NewReader(in)
	if err != nil {
		return nil, stageerr.New("rasterize", stageerr.Format, err)
	}

	hm, err := rasterize.Rasterize(r, rasterize.Options{
		ScaleFactor:     cfg.ScaleFactor,
		ContourInterval: cfg.ContourInterval,
		WaterClass:      cfg.WaterClass,
		GroundOnly:      !cfg.DetectBuildings,
	})
	if errors.Is(err, rasterize.ErrDegenerate) {
		return nil, stageerr.New("rasterize", stageerr.Degenerate, err)
	}
	if err != nil {
		return nil, stageerr.New("rasterize", stageerr.InvariantViolated, err)
	}

	out, err := ws.Create("ground.hmap")
	if err != nil {
		return nil, stageerr.New("rasterize", stageerr.IO, err)
	}
	defer out.Close()
	if err := hm.Write(out); err != nil {
		return nil, stageerr.New("rasterize", stageerr.IO, err)
	}
	return hm, nil
}

func runKnoll(ws *workspace.Workspace, cfg config.Config, hm *heightmap.Map) (*heightmap.Map, error) {
	if cfg.SkipKnollDetection {
		if err := writeHeightmap(ws, "deformed.hmap", hm); err != nil {
			return nil, stageerr.New("knoll", stageerr.IO, err)
		}
		return hm, nil
	}

	levels := contour.Extract(hm, contour.Options{Interval: cfg.ContourInterval / 2})
	rings := knoll.RingsFromLevels(levels)
	tops, candidates := knoll.Classify(rings)
	pins := knoll.SelectPins(tops, candidates, cfg.ContourInterval/2)
	steep := steepness.Compute(hm, 2)
	deformed := knoll.Deform(hm, pins, steep, cfg.ContourInterval)

	if err := writeHeightmap(ws, "deformed.hmap", deformed); err != nil {
		return nil, stageerr.New("knoll", stageerr.IO, err)
	}
	return deformed, nil
}

func runContour(ws *workspace.Workspace, cfg config.Config, hm *heightmap.Map) ([]smoothjoin.Feature, error) {
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

	out, err := ws.Create("contours.dxf")
	if err != nil {
		return nil, stageerr.New("contour", stageerr.IO, err)
	}
	defer out.Close()

	xmin, ymin := hm.XOffset, hm.YOffset
	xmax, ymax := hm.WorldX(hm.W-1), hm.WorldY(hm.H-1)
	w := dxfio.NewWriter(out)
	w.Header(xmin, ymin, xmax, ymax)
	for _, f := range features {
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
		return nil, stageerr.New("contour", stageerr.IO, err)
	}
	return features, nil
}

func runCliffs(ws *workspace.Workspace, cfg config.Config, hm *heightmap.Map, steep *steepness.Field, pts []record.Point) (cliff2, cliff3, cliff4 []cliff.Segment, err error) {
	copt := cliff.Options{
		Cliff1Limit:   cfg.Cliff1Limit,
		Cliff2Limit:   cfg.Cliff2Limit,
		CliffThin:     cfg.CliffThin,
		SteepFactor:   cfg.CliffSteepFactor,
		FlatPlace:     cfg.CliffFlatPlace,
		NoSmallCliffs: cfg.CliffNoSmallCliffs,
	}
	cliff2, cliff3, cliff4 = cliff.Detect(pts, hm, steep, copt, rand.Float64)

	out, err := ws.Create("cliffs.dxf")
	if err != nil {
		return nil, nil, nil, stageerr.New("cliffs", stageerr.IO, err)
	}
	defer out.Close()

	xmin, ymin := hm.XOffset, hm.YOffset
	xmax, ymax := hm.WorldX(hm.W-1), hm.WorldY(hm.H-1)
	w := dxfio.NewWriter(out)
	w.Header(xmin, ymin, xmax, ymax)
	write := func(layer string, segs []cliff.Segment) {
		for _, s := range segs {
			w.Polyline(layer, []dxfio.Vertex2D{{X: s.X1, Y: s.Y1}, {X: s.X2, Y: s.Y2}}, false)
		}
	}
	write("cliff2", cliff2)
	write("cliff3", cliff3)
	write("cliff4", cliff4)
	if err := w.Close(); err != nil {
		return nil, nil, nil, stageerr.New("cliffs", stageerr.IO, err)
	}
	return cliff2, cliff3, cliff4, nil
}

func runVegetation(ws *workspace.Workspace, cfg config.Config, hm *heightmap.Map, pts []record.Point) error {
	rasters := vegetation.Build(hm, pts, cfg)
	if err := encodePNG(ws, "green.png", rasters.Green); err != nil {
		return stageerr.New("vegetation", stageerr.IO, err)
	}
	if err := encodePNG(ws, "yellow.png", rasters.Yellow); err != nil {
		return stageerr.New("vegetation", stageerr.IO, err)
	}
	if err := encodePNG(ws, "water.png", rasters.Water); err != nil {
		return stageerr.New("vegetation", stageerr.IO, err)
	}
	if err := encodePNG(ws, "undergrowth.png", rasters.Undergrowth); err != nil {
		return stageerr.New("vegetation", stageerr.IO, err)
	}
	return nil
}

func encodePNG(ws *workspace.Workspace, name string, img image.Image) error {
	if img == nil {
		return nil
	}
	f, err := ws.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func runCompose(ws *workspace.Workspace, hm *heightmap.Map, features []smoothjoin.Feature, cliff2, cliff3, cliff4 []cliff.Segment, cfg config.Config) error {
	canvas := compose.Canvas{Width: hm.W, Height: hm.H, OriginX: hm.XOffset, OriginY: hm.WorldY(hm.H - 1), Scale: hm.Scale}
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

	contourRaster := compose.RasterizeFeatures(features, hm.W, hm.H, hm.XOffset, hm.WorldY(hm.H-1), hm.Scale, featureColors)
	layers["contours"] = compose.Layer{Name: "contours", Image: contourRaster, OriginX: hm.XOffset, OriginY: hm.WorldY(hm.H - 1), Scale: hm.Scale}

	cliffRaster := compose.RasterizeFeatures(cliffFeatures(cliff2, cliff3, cliff4), hm.W, hm.H, hm.XOffset, hm.WorldY(hm.H-1), hm.Scale, cliffColors)
	layers["cliffs"] = compose.Layer{Name: "cliffs", Image: cliffRaster, OriginX: hm.XOffset, OriginY: hm.WorldY(hm.H - 1), Scale: hm.Scale}

	final := compose.Compose(canvas, layers, compose.DefaultOrder)

	out, err := ws.Create("map.png")
	if err != nil {
		return stageerr.New("compose", stageerr.IO, err)
	}
	if err := png.Encode(out, final); err != nil {
		out.Close()
		return stageerr.New("compose", stageerr.IO, err)
	}
	if err := out.Close(); err != nil {
		return stageerr.New("compose", stageerr.IO, err)
	}

	pgw, err := ws.Create("map.pgw")
	if err != nil {
		return stageerr.New("compose", stageerr.IO, err)
	}
	if err := compose.WritePGW(pgw, hm.Scale, hm.XOffset, hm.WorldY(hm.H-1)); err != nil {
		pgw.Close()
		return stageerr.New("compose", stageerr.IO, err)
	}
	if err := pgw.Close(); err != nil {
		return stageerr.New("compose", stageerr.IO, err)
	}
	return nil
}

func vegeScale(cfg config.Config) float64 {
	if cfg.GreenDetectSize > 0 {
		return cfg.GreenDetectSize
	}
	return 3
}

func cliffFeatures(cliff2, cliff3, cliff4 []cliff.Segment) []smoothjoin.Feature {
	var out []smoothjoin.Feature
	add := func(layer smoothjoin.Layer, segs []cliff.Segment) {
		for _, s := range segs {
			out = append(out, smoothjoin.Feature{Verts: []contour.Vertex{{X: s.X1, Y: s.Y1}, {X: s.X2, Y: s.Y2}}, Layer: layer})
		}
	}
	add("cliff2", cliff2)
	add("cliff3", cliff3)
	add("cliff4", cliff4)
	return out
}

func writeHeightmap(ws *workspace.Workspace, name string, hm *heightmap.Map) error {
	f, err := ws.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()
	return hm.Write(f)
}

func readPoints(ws *workspace.Workspace) ([]record.Point, error) {
	f, err := ws.Open("points.bin")
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

// Runner adapts RunTile to internal/batch.Runner, so a batch.Pool can drive
// many tile workspaces concurrently. Each job's WorkspaceDir is processed
// independently; Cfg is shared read-only across every tile. A job without
// Force whose workspace already holds a map.png is skipped.
type Runner struct {
	Cfg config.Config
	Opt Options
}

func (r Runner) RunTile(ctx context.Context, job batch.Job) error {
	mapPath := job.WorkspaceDir + "/map.png"
	if job.Force {
		_ = os.Remove(mapPath)
	} else if _, err := os.Stat(mapPath); err == nil {
		return nil
	}
	return RunTile(ctx, job.WorkspaceDir, r.Cfg, r.Opt)
}
