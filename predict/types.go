package predict

import "pitwall/ml"

const (
	PitStopModel = "pitstop"
	LapTimeModel = "laptime"

	// ConfidenceRange is the half-width of the lap-time interval in seconds.
	ConfidenceRange = 0.5
)

const (
	RecommendationHigh   = "HIGH - Pit stop likely within 3 laps"
	RecommendationMedium = "MEDIUM - Monitor tyre degradation"
	RecommendationLow    = "LOW - Continue current stint"
)

type PitStopRequest struct {
	DriverNumber   int             `json:"driver_number"`
	CurrentLap     int             `json:"current_lap"`
	TyreAge        int             `json:"tyre_age"`
	TyreCompound   ml.TyreCompound `json:"tyre_compound"`
	Position       int             `json:"position"`
	GapToLeader    float64         `json:"gap_to_leader"`
	RecentLapTimes []float64       `json:"recent_lap_times"`
	AvgSpeed       float64         `json:"avg_speed"`
}

func (r PitStopRequest) input() ml.PitStopInput {
	return ml.PitStopInput{
		CurrentLap:     r.CurrentLap,
		TyreAge:        r.TyreAge,
		TyreCompound:   r.TyreCompound,
		Position:       r.Position,
		GapToLeader:    r.GapToLeader,
		RecentLapTimes: r.RecentLapTimes,
		AvgSpeed:       r.AvgSpeed,
	}
}

type PitStopResponse struct {
	DriverNumber   int     `json:"driver_number"`
	PitProbability float64 `json:"pit_probability"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
}

type LapTimeRequest struct {
	DriverNumber   int             `json:"driver_number"`
	CurrentLap     int             `json:"current_lap"`
	TyreAge        int             `json:"tyre_age"`
	TyreCompound   ml.TyreCompound `json:"tyre_compound"`
	FuelLoad       float64         `json:"fuel_load"`
	TrackTemp      float64         `json:"track_temp"`
	RecentLapTimes []float64       `json:"recent_lap_times"`
	AvgSpeed       float64         `json:"avg_speed"`
}

func (r LapTimeRequest) input() ml.LapTimeInput {
	return ml.LapTimeInput{
		CurrentLap:     r.CurrentLap,
		TyreAge:        r.TyreAge,
		TyreCompound:   r.TyreCompound,
		FuelLoad:       r.FuelLoad,
		TrackTemp:      r.TrackTemp,
		RecentLapTimes: r.RecentLapTimes,
		AvgSpeed:       r.AvgSpeed,
	}
}

type LapTimeResponse struct {
	DriverNumber       int        `json:"driver_number"`
	PredictedLapTime   float64    `json:"predicted_lap_time"`
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
}

type ModelsLoaded struct {
	PitStop bool `json:"pitstop"`
	LapTime bool `json:"laptime"`
}

type Health struct {
	Status       string       `json:"status"`
	ModelsLoaded ModelsLoaded `json:"models_loaded"`
}

// Recommendation maps a pit probability to its advice tier.
func Recommendation(p float64) string {
	switch {
	case p > 0.7:
		return RecommendationHigh
	case p > 0.4:
		return RecommendationMedium
	default:
		return RecommendationLow
	}
}
