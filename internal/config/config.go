// Package config holds the typed parameter bundle every pipeline stage
// reads from, and its viper-backed loader.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Zone describes one canopy-height band used by green vegetation scoring.
type Zone struct {
	Low, High, Roof, Factor float64
}

// Threshold maps a canopy roof-height range to a green-detection limit.
type Threshold struct {
	RoofLow, RoofHigh, Limit float64
}

// Config is the full parameter bundle for one pipeline run, equivalent to
// spec.md §6's configuration table.
type Config struct {
	ScaleFactor    float64
	ZOffset        float64
	ThinFactor     float64
	XFactor        float64
	YFactor        float64
	ZFactor        float64
	WaterClass     uint8
	BuildingsClass uint8

	SkipKnollDetection bool

	ContourInterval float64
	BasemapInterval float64
	IndexContours   float64
	FormlineLevel   float64

	InitialKnollThreshold float64
	Smoothing             float64
	Curviness             float64
	DepressionLength      int

	Cliff1Limit        float64
	Cliff2Limit        float64
	CliffThin          float64
	CliffSteepFactor   float64
	CliffFlatPlace     float64
	CliffNoSmallCliffs float64

	Zones                      []Zone
	Thresholds                 []Threshold
	GreenShades                []float64
	YellowHeight               float64
	YellowThreshold            float64
	GreenGround                float64
	PointVolumeFactor          float64
	PointVolumeExponent        float64
	GreenHigh                  float64
	TopWeight                  float64
	GreenTone                  float64
	VegeZOffset                float64
	UndergrowthLimit           float64
	UndergrowthLimit2          float64
	GreenDotAddition           int
	FirstAndLastReturnAsGround bool
	FirstAndLastReturnFactor   float64
	LastReturnFactor           float64
	YellowFirstLast            bool
	VegeThin                   uint32
	GreenDetectSize            float64
	MedianBoxSize              int
	MedianBoxSize2             int
	YellowMedianBoxSize        int
	WaterElevation             float64
	VegeBitmode                bool

	DetectBuildings bool
}

// Default returns the bundle populated with the same defaults the reference
// implementation falls back to when a key is absent from its ini file.
func Default() Config {
	return Config{
		ScaleFactor:           1.0,
		ThinFactor:            1.0,
		XFactor:               1.0,
		YFactor:               1.0,
		ZFactor:               1.0,
		WaterClass:            9,
		ContourInterval:       5.0,
		IndexContours:         12.5,
		FormlineLevel:         2.0,
		InitialKnollThreshold: 0.8,
		Smoothing:             1.0,
		Curviness:             1.0,
		DepressionLength:      181,
		Cliff1Limit:           1.0,
		Cliff2Limit:           1.0,
		CliffThin:             1.0,
		CliffSteepFactor:      0.33,
		CliffFlatPlace:        6.6,
		YellowHeight:          0.9,
		YellowThreshold:       0.9,
		GreenGround:           0.9,
		PointVolumeFactor:     0.1,
		PointVolumeExponent:   1.0,
		GreenHigh:             2.0,
		TopWeight:             0.8,
		GreenTone:             200.0,
		UndergrowthLimit:      0.35,
		UndergrowthLimit2:     0.56,
		FirstAndLastReturnAsGround: true,
		YellowFirstLast:            true,
		GreenDetectSize:            3.0,
		WaterElevation:             -999999.0,
	}
}

// Load reads a config bundle from v, a viper instance that has already read
// its config file/env/flags, layering values over Default(). Keys follow
// the reference implementation's ini key names so existing parameter files
// translate directly.
func Load(v *viper.Viper) (Config, error) {
	c := Default()

	setFloat(v, "scalefactor", &c.ScaleFactor)
	setFloat(v, "zoffset", &c.ZOffset)
	setFloat(v, "thinfactor", &c.ThinFactor)
	setFloat(v, "coordxfactor", &c.XFactor)
	setFloat(v, "coordyfactor", &c.YFactor)
	setFloat(v, "coordzfactor", &c.ZFactor)
	if v.IsSet("waterclass") {
		c.WaterClass = uint8(v.GetInt("waterclass"))
	}
	if v.IsSet("buildingsclass") {
		c.BuildingsClass = uint8(v.GetInt("buildingsclass"))
	}
	c.SkipKnollDetection = v.GetBool("skipknolldetection")
	c.DetectBuildings = v.GetBool("detectbuildings")

	setFloat(v, "contour_interval", &c.ContourInterval)
	setFloat(v, "basemapinterval", &c.BasemapInterval)
	setFloat(v, "indexcontours", &c.IndexContours)
	setFloat(v, "formline", &c.FormlineLevel)

	setFloat(v, "knolls", &c.InitialKnollThreshold)
	setFloat(v, "smoothing", &c.Smoothing)
	setFloat(v, "curviness", &c.Curviness)
	if v.IsSet("depression_length") {
		c.DepressionLength = v.GetInt("depression_length")
	}

	setFloat(v, "cliff1", &c.Cliff1Limit)
	setFloat(v, "cliff2", &c.Cliff2Limit)
	setFloat(v, "cliffthin", &c.CliffThin)
	setFloat(v, "cliffsteepfactor", &c.CliffSteepFactor)
	setFloat(v, "cliffflatplace", &c.CliffFlatPlace)
	setFloat(v, "cliffnosmallciffs", &c.CliffNoSmallCliffs)

	setFloat(v, "yellowheight", &c.YellowHeight)
	setFloat(v, "yellowthresold", &c.YellowThreshold)
	setFloat(v, "greenground", &c.GreenGround)
	setFloat(v, "pointvolumefactor", &c.PointVolumeFactor)
	setFloat(v, "pointvolumeexponent", &c.PointVolumeExponent)
	setFloat(v, "greenhigh", &c.GreenHigh)
	setFloat(v, "topweight", &c.TopWeight)
	setFloat(v, "lightgreentone", &c.GreenTone)
	setFloat(v, "vegezoffset", &c.VegeZOffset)
	setFloat(v, "undergrowth", &c.UndergrowthLimit)
	setFloat(v, "undergrowth2", &c.UndergrowthLimit2)
	if v.IsSet("greendotsize") {
		c.GreenDotAddition = v.GetInt("greendotsize")
	}
	if v.IsSet("firstandlastreturnasground") {
		c.FirstAndLastReturnAsGround = v.GetInt("firstandlastreturnasground") != 0
	}
	setFloat(v, "firstandlastreturnfactor", &c.FirstAndLastReturnFactor)
	setFloat(v, "lastreturnfactor", &c.LastReturnFactor)
	if v.IsSet("yellowfirstlast") {
		c.YellowFirstLast = v.GetInt("yellowfirstlast") != 0
	}
	if v.IsSet("vegethin") {
		c.VegeThin = uint32(v.GetInt("vegethin"))
	}
	setFloat(v, "greendetectsize", &c.GreenDetectSize)
	if v.IsSet("medianboxsize") {
		c.MedianBoxSize = v.GetInt("medianboxsize")
	}
	if v.IsSet("medianboxsize2") {
		c.MedianBoxSize2 = v.GetInt("medianboxsize2")
	}
	if v.IsSet("yellowmedianboxsize") {
		c.YellowMedianBoxSize = v.GetInt("yellowmedianboxsize")
	}
	setFloat(v, "waterelevation", &c.WaterElevation)
	c.VegeBitmode = v.GetBool("vege_bitmode")

	zones, err := parseZones(v)
	if err != nil {
		return Config{}, err
	}
	c.Zones = zones
	c.Thresholds = parseThresholds(v)
	if raw := v.GetString("greenshades"); raw != "" {
		c.GreenShades = splitFloats(raw)
	}

	if c.ThinFactor < 0 || c.ThinFactor > 1 {
		return Config{}, fmt.Errorf("config: thinfactor %v outside allowed range [0,1]", c.ThinFactor)
	}
	if c.ThinFactor == 0 {
		c.ThinFactor = 1
	}
	if c.CliffThin < 0 || c.CliffThin > 1 {
		return Config{}, fmt.Errorf("config: cliffthin %v outside allowed range [0,1]", c.CliffThin)
	}
	if c.XFactor == 0 {
		c.XFactor = 1
	}
	if c.YFactor == 0 {
		c.YFactor = 1
	}
	if c.ZFactor == 0 {
		c.ZFactor = 1
	}

	return c, nil
}

func setFloat(v *viper.Viper, key string, dst *float64) {
	if v.IsSet(key) {
		*dst = v.GetFloat64(key)
	}
}

func parseZones(v *viper.Viper) ([]Zone, error) {
	var zones []Zone
	for i := 1; ; i++ {
		key := fmt.Sprintf("zone%d", i)
		raw := v.GetString(key)
		if raw == "" {
			break
		}
		parts := splitFloats(raw)
		if len(parts) != 4 {
			return nil, fmt.Errorf("config: %s: expected 4 pipe-separated values, got %d", key, len(parts))
		}
		zones = append(zones, Zone{Low: parts[0], High: parts[1], Roof: parts[2], Factor: parts[3]})
	}
	return zones, nil
}

func parseThresholds(v *viper.Viper) []Threshold {
	var thresholds []Threshold
	for i := 1; ; i++ {
		key := fmt.Sprintf("thresold%d", i)
		raw := v.GetString(key)
		if raw == "" {
			break
		}
		parts := splitFloats(raw)
		if len(parts) != 3 {
			break
		}
		thresholds = append(thresholds, Threshold{RoofLow: parts[0], RoofHigh: parts[1], Limit: parts[2]})
	}
	return thresholds
}

func splitFloats(raw string) []float64 {
	var out []float64
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == '|' {
			var f float64
			if _, err := fmt.Sscanf(raw[start:i], "%g", &f); err == nil {
				out = append(out, f)
			}
			start = i + 1
		}
	}
	return out
}
