package ml

import (
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultRecentLapTime stands in for the recent-lap average when a request
// carries no lap times.
const DefaultRecentLapTime = 90.0

type TyreCompound int

const (
	Soft TyreCompound = iota
	Medium
	Hard
	Intermediate
	Wet
)

var compoundNames = map[string]TyreCompound{
	"SOFT":         Soft,
	"MEDIUM":       Medium,
	"HARD":         Hard,
	"INTERMEDIATE": Intermediate,
	"WET":          Wet,
}

// EncodeTyreCompound maps a compound name to its code. Matching ignores case
// only, so padded names like " soft " are unknown. Unknown names fall back to
// MEDIUM.
func EncodeTyreCompound(name string) int {
	// Casers carry state, so each call gets its own.
	key := cases.Upper(language.Und).String(name)
	if c, ok := compoundNames[key]; ok {
		return int(c)
	}
	return int(Medium)
}

// CompoundFromCode accepts the numeric codes 0-4; anything else is MEDIUM.
func CompoundFromCode(code int) TyreCompound {
	if code < int(Soft) || code > int(Wet) {
		return Medium
	}
	return TyreCompound(code)
}

func (c TyreCompound) String() string {
	switch c {
	case Soft:
		return "SOFT"
	case Hard:
		return "HARD"
	case Intermediate:
		return "INTERMEDIATE"
	case Wet:
		return "WET"
	default:
		return "MEDIUM"
	}
}

// UnmarshalJSON takes either a compound name or its integer code. A quoted
// digit is a name, so "2" is MEDIUM while 2 is HARD.
func (c *TyreCompound) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*c = TyreCompound(EncodeTyreCompound(name))
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return errors.Errorf("tyre_compound must be a compound name or an integer code, got %s", data)
	}
	*c = CompoundFromCode(code)
	return nil
}

func (c TyreCompound) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

type PitStopInput struct {
	CurrentLap     int
	TyreAge        int
	TyreCompound   TyreCompound
	Position       int
	GapToLeader    float64
	RecentLapTimes []float64
	AvgSpeed       float64
}

type LapTimeInput struct {
	CurrentLap     int
	TyreAge        int
	TyreCompound   TyreCompound
	FuelLoad       float64
	TrackTemp      float64
	RecentLapTimes []float64
	AvgSpeed       float64
}

// PitStopFeatures must stay in the column order of PitStopFeatureNames and
// of GeneratePitStopData.
func PitStopFeatures(in PitStopInput) []float64 {
	return []float64{
		float64(in.CurrentLap),
		float64(in.TyreAge),
		float64(in.TyreCompound),
		float64(in.Position),
		in.GapToLeader,
		recentLapAverage(in.RecentLapTimes),
		PopulationVariance(in.RecentLapTimes),
		in.AvgSpeed,
	}
}

// LapTimeFeatures must stay in the column order of LapTimeFeatureNames and
// of GenerateLapTimeData.
func LapTimeFeatures(in LapTimeInput) []float64 {
	return []float64{
		float64(in.CurrentLap),
		float64(in.TyreAge),
		float64(in.TyreCompound),
		in.FuelLoad,
		in.TrackTemp,
		recentLapAverage(in.RecentLapTimes),
		Trend(in.RecentLapTimes),
		in.AvgSpeed,
	}
}

func PitStopFeatureNames() []string {
	return []string{
		"current_lap",
		"tyre_age",
		"tyre_compound",
		"position",
		"gap_to_leader",
		"avg_recent_lap",
		"lap_variance",
		"avg_speed",
	}
}

func LapTimeFeatureNames() []string {
	return []string{
		"current_lap",
		"tyre_age",
		"tyre_compound",
		"fuel_load",
		"track_temp",
		"avg_recent_lap",
		"lap_trend",
		"avg_speed",
	}
}

func recentLapAverage(times []float64) float64 {
	if len(times) == 0 {
		return DefaultRecentLapTime
	}
	return Mean(times)
}
