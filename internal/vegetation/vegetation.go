// Package vegetation turns classified point returns into the green/yellow
// runnability rasters and undergrowth hatching a topographic map overlays on
// the contour base: how many first-return hits land in a cell relative to
// ground hits drives the green shade, low vegetation density drives the
// yellow open-land wash, and a coarse canopy-hit ratio drives undergrowth
// tick marks. Grounded on original_source/src/vegetation.rs's makevege.
package vegetation

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/gift"

	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/haltia-gis/terrainmap/internal/heightmap"
	"github.com/haltia-gis/terrainmap/internal/record"
)

type cellKey struct{ X, Y int }

// Rasters holds the finished vegetation overlay layers, all in one
// world-aligned pixel space of one pixel per metre (Green is painted in
// GreenDetectSize-metre blocks), except Undergrowth which is rendered at its
// own finer scale.
type Rasters struct {
	Green       *image.RGBA
	Yellow      *image.NRGBA
	Water       *image.RGBA
	Undergrowth *image.NRGBA
	// UndergrowthScale is pixels-per-metre for Undergrowth, independent of
	// Green/Yellow/Water's one-pixel-per-metre resolution.
	UndergrowthScale float64
	OriginX, OriginY float64
}

var undergrowthColor = color.NRGBA{64, 121, 0, 255}
var yellowColor = color.NRGBA{255, 219, 166, 255}
var waterColor = color.RGBA{29, 190, 255, 255}
var buildingColor = color.RGBA{0, 0, 0, 255}

// Build runs the full vegetation-raster pipeline over one tile's ground
// heightmap and raw classified points.
func Build(h *heightmap.Map, pts []record.Point, cfg config.Config) Rasters {
	xmin, ymin := h.XOffset, h.YOffset
	xmax, ymax := xmin, ymin
	for _, p := range pts {
		xmax = math.Max(xmax, p.X)
		ymax = math.Max(ymax, p.Y)
	}

	block := cfg.GreenDetectSize
	if block <= 0 {
		block = 3
	}

	top := make(map[cellKey]float64)
	yhit := make(map[cellKey]int)
	noyhit := make(map[cellKey]int)

	thin := cfg.VegeThin
	for i, p := range pts {
		if thin != 0 && (uint32(i+1))%thin != 0 {
			continue
		}
		if p.X <= xmin || p.Y <= ymin {
			continue
		}
		bk := cellKey{int(math.Floor((p.X - xmin) / block)), int(math.Floor((p.Y - ymin) / block))}
		if p.Z > top[bk] {
			top[bk] = p.Z
		}
		yk := cellKey{int(math.Floor((p.X - xmin) / 3)), int(math.Floor((p.Y - ymin) / 3))}
		ground := groundElevation(h, p.X, p.Y)
		if p.Classification == 2 || p.Z < cfg.YellowHeight+ground {
			yhit[yk]++
		} else if p.NumberOfReturns == 1 && p.ReturnNumber == 1 {
			if cfg.YellowFirstLast {
				noyhit[yk]++
			}
		} else {
			noyhit[yk]++
		}
	}

	firsthit := make(map[cellKey]int)
	ugg := make(map[cellKey]float64)
	ug := make(map[cellKey]int)
	ghit := make(map[cellKey]int)
	greenhit := make(map[cellKey]float64)
	highit := make(map[cellKey]int)
	const ugStep = 6.0

	for i, p := range pts {
		if thin != 0 && (uint32(i+1))%thin != 0 {
			continue
		}
		if p.X <= xmin || p.Y <= ymin {
			continue
		}
		hh := p.Z - cfg.VegeZOffset

		if p.ReturnNumber == 1 {
			fk := cellKey{int(math.Floor((p.X-xmin)/block + 0.5)), int(math.Floor((p.Y-ymin)/block + 0.5))}
			firsthit[fk]++
		}

		ele := bilinearGround(h, p.X, p.Y, xmin, ymin)
		heightAboveGround := hh - ele

		uk := cellKey{
			int(math.Floor((p.X-xmin)/block/ugStep + 0.5)),
			int(math.Floor(math.Floor((p.Y-ymin)/block/ugStep) + 0.5)),
		}
		switch {
		case heightAboveGround <= 1.2:
			if p.Classification == 2 {
				ugg[uk]++
			} else if heightAboveGround > 0.25 {
				ug[uk]++
			} else {
				ugg[uk]++
			}
		default:
			ugg[uk] += 0.05
		}

		gk := cellKey{int(math.Floor((p.X-xmin)/block + 0.5)), int(math.Floor((p.Y-ymin)/block + 0.5))}
		gky := cellKey{gk.X, int(math.Floor((p.Y - ymin) / block))}
		if p.Classification == 2 || cfg.GreenGround >= heightAboveGround {
			if p.NumberOfReturns == 1 && p.ReturnNumber == 1 && cfg.FirstAndLastReturnAsGround {
				ghit[gky]++
			} else {
				ghit[gky]++
			}
		} else {
			last := 1.0
			if p.NumberOfReturns == p.ReturnNumber {
				last = cfg.LastReturnFactor
				if heightAboveGround < 5.0 {
					last = cfg.FirstAndLastReturnFactor
				}
			}
			topVal := top[gk]
			for _, z := range cfg.Zones {
				if heightAboveGround >= z.Low && heightAboveGround < z.High && topVal-ele < z.Roof {
					greenhit[gk] += z.Factor * last
					break
				}
			}
			if cfg.GreenHigh < heightAboveGround {
				highit[gk]++
			}
		}
	}

	w := int(math.Floor(xmax-xmin) / block)
	hh := int(math.Floor(ymax-ymin) / block)
	if w < 1 {
		w = 1
	}
	if hh < 1 {
		hh = 1
	}
	imgWidth := int(float64(w) * block)
	imgHeight := int(float64(hh) * block)

	green := image.NewRGBA(image.Rect(0, 0, imgWidth, imgHeight))
	fillRGBA(green, color.RGBA{255, 255, 255, 255})
	yellow := image.NewNRGBA(image.Rect(0, 0, imgWidth, imgHeight))

	greens := greenShades(cfg)

	var aveg, avecount float64
	for x := 1; x < hh; x++ {
		for y := 1; y < hh; y++ {
			k := cellKey{x, y}
			if ghit[k] > 1 {
				aveg += float64(firsthit[k])
				avecount++
			}
		}
	}
	if avecount > 0 {
		aveg /= avecount
	}

	wy := int(math.Floor(xmax-xmin) / 3)
	hy := int(math.Floor(ymax-ymin) / 3)
	for x := 4; x < wy-3; x++ {
		for y := 4; y < hy-3; y++ {
			var ghit2, highhit2 int
			for i := x; i < x+2; i++ {
				for j := y; j < y+2; j++ {
					ghit2 += yhit[cellKey{i, j}]
					highhit2 += noyhit[cellKey{i, j}]
				}
			}
			if float64(ghit2)/(float64(highhit2)+float64(ghit2)+0.01) > cfg.YellowThreshold {
				fillRectNRGBA(yellow, x*3+2, (hy-y)*3-3, 3, 3, yellowColor)
			}
		}
	}

	for x := 2; x < w; x++ {
		for y := 2; y < hh; y++ {
			k := cellKey{x, y}
			roof := top[k] - bilinearGround(h, xmin+float64(x)*block, ymin+float64(y)*block, xmin, ymin)

			firsthit2 := firsthit[k]
			for i := x - 2; i < x+3; i++ {
				for j := y - 2; j < y+3; j++ {
					if v := firsthit[cellKey{i, j}]; v < firsthit2 {
						firsthit2 = v
					}
				}
			}

			gh2 := greenhit[k]
			hi2 := highit[k]
			g2 := ghit[cellKey{x, y}]

			greenlimit := 9999.0
			for _, th := range cfg.Thresholds {
				if roof >= th.RoofLow && roof < th.RoofHigh {
					greenlimit = th.Limit
					break
				}
			}

			thevalue := gh2 / (float64(g2) + gh2 + 1.0) *
				(1.0 - cfg.TopWeight + cfg.TopWeight*float64(hi2)/(float64(g2)+gh2+float64(hi2)+1.0)) *
				math.Pow(1.0-cfg.PointVolumeFactor*float64(firsthit2)/(aveg+0.00001), cfg.PointVolumeExponent)

			if thevalue > 0 {
				shadeIdx := 0
				for i, shade := range cfg.GreenShades {
					if thevalue > greenlimit*shade {
						shadeIdx = i + 1
					}
				}
				if shadeIdx > 0 {
					add := cfg.GreenDotAddition
					px := int((float64(x)+0.5)*block) - add
					py := int((float64(hh-y))-0.5*block) - add
					size := int(block) + add
					fillRectRGBA(green, px, py, size, size, greens[shadeIdx-1])
				}
			}
		}
	}

	if cfg.MedianBoxSize > 0 {
		green = toRGBA(blur(green, 0.6))
		green = medianFilterRGBA(green, cfg.MedianBoxSize/2)
		yellow = medianFilterNRGBA(yellow, cfg.MedianBoxSize/2)
	}
	if cfg.MedianBoxSize2 > 0 {
		green = medianFilterRGBA(green, cfg.MedianBoxSize2/2)
	}

	water := image.NewRGBA(image.Rect(0, 0, imgWidth, imgHeight))
	fillRGBA(water, color.RGBA{255, 255, 255, 255})
	for _, p := range pts {
		if cfg.BuildingsClass > 0 && p.Classification == cfg.BuildingsClass {
			fillRectRGBA(water, int(p.X-xmin)-1, int(ymax-p.Y)-1, 3, 3, buildingColor)
		}
		if cfg.WaterClass > 0 && p.Classification == cfg.WaterClass {
			fillRectRGBA(water, int(p.X-xmin)-1, int(ymax-p.Y)-1, 3, 3, waterColor)
		}
	}
	for gy := 0; gy < h.H; gy++ {
		for gx := 0; gx < h.W; gx++ {
			if h.At(gx, gy) < cfg.WaterElevation {
				wx := h.WorldX(gx)
				wy := h.WorldY(gy)
				fillRectRGBA(water, int(wx-xmin)-1, int(ymax-wy)-1, 3, 3, waterColor)
			}
		}
	}

	undergrowth, scale := buildUndergrowth(ug, ugg, w, hh, block, cfg)

	return Rasters{
		Green:            green,
		Yellow:           yellow,
		Water:            water,
		Undergrowth:      undergrowth,
		UndergrowthScale: scale,
		OriginX:          xmin,
		OriginY:          ymax,
	}
}

func groundElevation(h *heightmap.Map, x, y float64) float64 {
	fx := (x - h.XOffset) / h.Scale
	fy := (y - h.YOffset) / h.Scale
	return h.BilinearAt(fx, fy)
}

func bilinearGround(h *heightmap.Map, x, y, _, _ float64) float64 {
	return groundElevation(h, x, y)
}

func greenShades(cfg config.Config) []color.RGBA {
	n := len(cfg.GreenShades)
	out := make([]color.RGBA, n)
	if n <= 1 {
		for i := range out {
			out[i] = color.RGBA{uint8(cfg.GreenTone), 180, uint8(cfg.GreenTone), 255}
		}
		return out
	}
	for i := 0; i < n; i++ {
		step := cfg.GreenTone / float64(n-1) * float64(i)
		v := uint8(clampByte(cfg.GreenTone - step))
		g := uint8(clampByte(254.0 - (74.0/float64(n-1))*float64(i)))
		out[i] = color.RGBA{v, g, v, 255}
	}
	return out
}

func clampByte(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func fillRGBA(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func fillRectRGBA(img *image.RGBA, x, y, w, h int, c color.RGBA) {
	b := img.Bounds()
	for j := y; j < y+h; j++ {
		if j < b.Min.Y || j >= b.Max.Y {
			continue
		}
		for i := x; i < x+w; i++ {
			if i < b.Min.X || i >= b.Max.X {
				continue
			}
			img.SetRGBA(i, j, c)
		}
	}
}

func fillRectNRGBA(img *image.NRGBA, x, y, w, h int, c color.NRGBA) {
	b := img.Bounds()
	for j := y; j < y+h; j++ {
		if j < b.Min.Y || j >= b.Max.Y {
			continue
		}
		for i := x; i < x+w; i++ {
			if i < b.Min.X || i >= b.Max.X {
				continue
			}
			img.SetNRGBA(i, j, c)
		}
	}
}

// buildUndergrowth draws the perpendicular tick-mark hatching used for dense
// and very dense undergrowth, at a finer pixel scale (scalefactor-normalized
// per spec.md's undergrowth.pgw sidecar convention).
func buildUndergrowth(ug, ugg map[cellKey]int, w, h int, block float64, cfg config.Config) (*image.NRGBA, float64) {
	scale := cfg.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	tmpfactor := 600.0 / 254.0 / scale
	width := int(float64(w) * block * tmpfactor)
	height := int(float64(h) * block * tmpfactor)
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	const step = 6.0
	hf := float64(h)
	ww := float64(w) * block
	hh := hf * block

	for x := 0.0; x < ww; x += block * step {
		for y := 0.0; y < hh; y += block * step {
			xx := int(math.Floor(x / block / step))
			yy := int(math.Floor(y / block / step))
			k := cellKey{xx, yy}
			denom := float64(ug[k]) + ugg[k] + 0.01
			value := float64(ug[k]) / denom

			if value > cfg.UndergrowthLimit {
				drawVLine(img, tmpfactor*(x+block*3), tmpfactor*(hf*block-y-block*3), tmpfactor*(hf*block-y+block*3))
				drawVLine(img, tmpfactor*(x+block*3)+1, tmpfactor*(hf*block-y-block*3), tmpfactor*(hf*block-y+block*3))
				drawVLine(img, tmpfactor*(x-block*3), tmpfactor*(hf*block-y-block*3), tmpfactor*(hf*block-y+block*3))
				drawVLine(img, tmpfactor*(x-block*3)+1, tmpfactor*(hf*block-y-block*3), tmpfactor*(hf*block-y+block*3))
			}
			if value > cfg.UndergrowthLimit2 {
				drawVLine(img, tmpfactor*x, tmpfactor*(hf*block-y-block*3), tmpfactor*(hf*block-y+block*3))
				drawVLine(img, tmpfactor*x+1, tmpfactor*(hf*block-y-block*3), tmpfactor*(hf*block-y+block*3))
			}
		}
	}

	filtered := medianFilterNRGBA(img, int(block*step))
	return filtered, tmpfactor
}

func drawVLine(img *image.NRGBA, x, y0, y1 float64) {
	b := img.Bounds()
	xi := int(x)
	if xi < b.Min.X || xi >= b.Max.X {
		return
	}
	lo, hi := int(math.Min(y0, y1)), int(math.Max(y0, y1))
	for y := lo; y <= hi; y++ {
		if y < b.Min.Y || y >= b.Max.Y {
			continue
		}
		img.SetNRGBA(xi, y, undergrowthColor)
	}
}

// blur runs the teacher's gift-based smoothing pass (a light Gaussian
// softening) ahead of the exact box-median pass below; gift exposes no
// literal median filter primitive, so the median itself is hand-rolled.
func blur(img image.Image, sigma float32) *image.NRGBA {
	g := gift.New(gift.GaussianBlur(sigma))
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

func toRGBA(img *image.NRGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}
	return out
}

func medianFilterRGBA(img *image.RGBA, radius int) *image.RGBA {
	if radius <= 0 {
		return img
	}
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, gg, bl, a := medianWindowRGBA(img, x, y, radius)
			out.SetRGBA(x, y, color.RGBA{r, gg, bl, a})
		}
	}
	return out
}

func medianWindowRGBA(img *image.RGBA, cx, cy, radius int) (r, g, b, a uint8) {
	bnd := img.Bounds()
	var rs, gs, bs, as []int
	for y := cy - radius; y <= cy+radius; y++ {
		if y < bnd.Min.Y || y >= bnd.Max.Y {
			continue
		}
		for x := cx - radius; x <= cx+radius; x++ {
			if x < bnd.Min.X || x >= bnd.Max.X {
				continue
			}
			c := img.RGBAAt(x, y)
			rs = append(rs, int(c.R))
			gs = append(gs, int(c.G))
			bs = append(bs, int(c.B))
			as = append(as, int(c.A))
		}
	}
	return uint8(median(rs)), uint8(median(gs)), uint8(median(bs)), uint8(median(as))
}

func medianFilterNRGBA(img *image.NRGBA, radius int) *image.NRGBA {
	if radius <= 0 {
		return img
	}
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, gg, bl, a := medianWindowNRGBA(img, x, y, radius)
			out.SetNRGBA(x, y, color.NRGBA{r, gg, bl, a})
		}
	}
	return out
}

func medianWindowNRGBA(img *image.NRGBA, cx, cy, radius int) (r, g, b, a uint8) {
	bnd := img.Bounds()
	var rs, gs, bs, as []int
	for y := cy - radius; y <= cy+radius; y++ {
		if y < bnd.Min.Y || y >= bnd.Max.Y {
			continue
		}
		for x := cx - radius; x <= cx+radius; x++ {
			if x < bnd.Min.X || x >= bnd.Max.X {
				continue
			}
			c := img.NRGBAAt(x, y)
			rs = append(rs, int(c.R))
			gs = append(gs, int(c.G))
			bs = append(bs, int(c.B))
			as = append(as, int(c.A))
		}
	}
	return uint8(median(rs)), uint8(median(gs)), uint8(median(bs)), uint8(median(as))
}

func median(v []int) int {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]int{}, v...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}
