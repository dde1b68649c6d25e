package ml

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTyreCompound(t *testing.T) {
	cases := map[string]int{
		"soft":         0,
		"SOFT":         0,
		"Soft":         0,
		" soft ":       1,
		"hard\n":       1,
		"2":            1,
		"hard":         2,
		"Intermediate": 3,
		"wet":          4,
		"hypersoft":    1,
		"":             1,
	}
	for name, want := range cases {
		assert.Equal(t, want, EncodeTyreCompound(name), "compound %q", name)
	}
}

func TestTyreCompoundJSON(t *testing.T) {
	var payload struct {
		Compound TyreCompound `json:"tyre_compound"`
	}
	for raw, want := range map[string]TyreCompound{
		`{"tyre_compound":"SOFT"}`:   Soft,
		`{"tyre_compound":"wet"}`:    Wet,
		`{"tyre_compound":"slick"}`:  Medium,
		`{"tyre_compound":2}`:        Hard,
		`{"tyre_compound":"2"}`:      Medium,
		`{"tyre_compound":" soft "}`: Medium,
		`{"tyre_compound":9}`:        Medium,
	} {
		require.NoError(t, json.Unmarshal([]byte(raw), &payload), raw)
		assert.Equal(t, want, payload.Compound, raw)
	}

	assert.Error(t, json.Unmarshal([]byte(`{"tyre_compound":[1]}`), &payload))

	out, err := json.Marshal(Intermediate)
	require.NoError(t, err)
	assert.Equal(t, `"INTERMEDIATE"`, string(out))
}

func TestPitStopFeatures(t *testing.T) {
	in := PitStopInput{
		CurrentLap:     30,
		TyreAge:        28,
		TyreCompound:   Soft,
		Position:       3,
		GapToLeader:    5.2,
		RecentLapTimes: []float64{91.2, 91.5, 91.8},
		AvgSpeed:       305,
	}
	features := PitStopFeatures(in)
	require.Len(t, features, len(PitStopFeatureNames()))
	assert.Equal(t, []float64{30, 28, 0, 3, 5.2}, features[:5])
	assert.InDelta(t, 91.5, features[5], 1e-9)
	assert.InDelta(t, 0.06, features[6], 1e-9)
	assert.Equal(t, 305.0, features[7])
}

func TestPitStopFeaturesRecentLapDefaults(t *testing.T) {
	features := PitStopFeatures(PitStopInput{RecentLapTimes: []float64{}})
	assert.Equal(t, 90.0, features[5])
	assert.Equal(t, 0.0, features[6])

	features = PitStopFeatures(PitStopInput{RecentLapTimes: []float64{91.0}})
	assert.Equal(t, 91.0, features[5])
	assert.Equal(t, 0.0, features[6])
}

func TestLapTimeFeatures(t *testing.T) {
	features := LapTimeFeatures(LapTimeInput{
		CurrentLap:     12,
		TyreAge:        6,
		TyreCompound:   Hard,
		FuelLoad:       70,
		TrackTemp:      38.5,
		RecentLapTimes: []float64{92.0, 91.4, 91.1},
		AvgSpeed:       298,
	})
	require.Len(t, features, len(LapTimeFeatureNames()))
	assert.Equal(t, []float64{12, 6, 2, 70, 38.5}, features[:5])
	assert.InDelta(t, 91.5, features[5], 1e-9)
	assert.InDelta(t, -0.9, features[6], 1e-9)
	assert.Equal(t, 298.0, features[7])

	features = LapTimeFeatures(LapTimeInput{RecentLapTimes: []float64{91.0}})
	assert.Equal(t, 91.0, features[5])
	assert.Equal(t, 0.0, features[6])

	features = LapTimeFeatures(LapTimeInput{})
	assert.Equal(t, DefaultRecentLapTime, features[5])
}

func TestFeatureCalc(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
	assert.InDelta(t, 2.0/3.0, PopulationVariance([]float64{1, 2, 3}), 1e-12)
	assert.Equal(t, 0.0, PopulationVariance([]float64{5}))
	assert.Equal(t, 2.0, Trend([]float64{1, 5, 3}))
	assert.Equal(t, 0.123, Round3(0.12345))
	assert.Equal(t, 91.5, Round3(91.49951))
}
