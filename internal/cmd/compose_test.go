package cmd

import (
	"testing"

	"github.com/haltia-gis/terrainmap/internal/cliff"
	"github.com/haltia-gis/terrainmap/internal/config"
	"github.com/stretchr/testify/require"
)

func TestVegeScaleUsesConfiguredSize(t *testing.T) {
	cfg := config.Default()
	cfg.GreenDetectSize = 5
	require.Equal(t, 5.0, vegeScale(cfg))
}

func TestVegeScaleFallsBackWhenUnset(t *testing.T) {
	cfg := config.Default()
	cfg.GreenDetectSize = 0
	require.Equal(t, 3.0, vegeScale(cfg))
}

func TestCliffFeaturesTagsEachTierWithItsOwnLayer(t *testing.T) {
	cliff2 := []cliff.Segment{{X1: 0, Y1: 0, X2: 1, Y2: 0}}
	cliff3 := []cliff.Segment{{X1: 0, Y1: 1, X2: 1, Y2: 1}, {X1: 1, Y1: 1, X2: 2, Y2: 1}}
	cliff4 := []cliff.Segment{{X1: 0, Y1: 2, X2: 1, Y2: 2}}

	features := cliffFeatures(cliff2, cliff3, cliff4)
	require.Len(t, features, 4)
	require.Equal(t, "cliff2", string(features[0].Layer))
	require.Equal(t, "cliff3", string(features[1].Layer))
	require.Equal(t, "cliff3", string(features[2].Layer))
	require.Equal(t, "cliff4", string(features[3].Layer))
}

func TestCliffFeaturesOnNoSegmentsReturnsEmpty(t *testing.T) {
	require.Empty(t, cliffFeatures(nil, nil, nil))
}
