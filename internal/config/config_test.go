package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	v := viper.New()
	c, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 1.0, c.ScaleFactor)
	require.Equal(t, 5.0, c.ContourInterval)
	require.Equal(t, 0.8, c.InitialKnollThreshold)
	require.Equal(t, 181, c.DepressionLength)
}

func TestLoadOverridesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("scalefactor", 2.5)
	v.Set("contour_interval", 2.5)
	v.Set("zone1", "0.0|0.5|2.0|1.0")
	v.Set("thresold1", "0.0|2.0|0.3")

	c, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 2.5, c.ScaleFactor)
	require.Equal(t, 2.5, c.ContourInterval)
	require.Len(t, c.Zones, 1)
	require.Equal(t, Zone{Low: 0, High: 0.5, Roof: 2.0, Factor: 1.0}, c.Zones[0])
	require.Len(t, c.Thresholds, 1)
	require.Equal(t, Threshold{RoofLow: 0, RoofHigh: 2.0, Limit: 0.3}, c.Thresholds[0])
}

func TestLoadRejectsOutOfRangeThinFactor(t *testing.T) {
	v := viper.New()
	v.Set("thinfactor", 1.5)
	_, err := Load(v)
	require.Error(t, err)
}

func TestLoadTreatsZeroThinFactorAsOne(t *testing.T) {
	v := viper.New()
	v.Set("thinfactor", 0)
	c, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, 1.0, c.ThinFactor)
}
