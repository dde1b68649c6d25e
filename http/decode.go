package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"pitwall/ml"
	"pitwall/predict"
)

// validationError is a request body problem reported to the client as 422.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...interface{}) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// Payloads decode into pointers so an absent field can be told apart from a
// zero value.
type pitStopPayload struct {
	DriverNumber   *int             `json:"driver_number"`
	CurrentLap     *int             `json:"current_lap"`
	TyreAge        *int             `json:"tyre_age"`
	TyreCompound   *ml.TyreCompound `json:"tyre_compound"`
	Position       *int             `json:"position"`
	GapToLeader    *float64         `json:"gap_to_leader"`
	RecentLapTimes *[]float64       `json:"recent_lap_times"`
	AvgSpeed       *float64         `json:"avg_speed"`
}

type lapTimePayload struct {
	DriverNumber   *int             `json:"driver_number"`
	CurrentLap     *int             `json:"current_lap"`
	TyreAge        *int             `json:"tyre_age"`
	TyreCompound   *ml.TyreCompound `json:"tyre_compound"`
	FuelLoad       *float64         `json:"fuel_load"`
	TrackTemp      *float64         `json:"track_temp"`
	RecentLapTimes *[]float64       `json:"recent_lap_times"`
	AvgSpeed       *float64         `json:"avg_speed"`
}

type field struct {
	name    string
	present bool
}

func requireFields(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if !f.present {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return invalid("field required: %s", strings.Join(missing, ", "))
	}
	return nil
}

func nonNegative(name string, v int) error {
	if v < 0 {
		return invalid("%s must be greater than or equal to 0", name)
	}
	return nil
}

// decodeJSON reads exactly one JSON value. Anything but whitespace after it
// is rejected.
func decodeJSON(body io.Reader, v interface{}) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return bodyError(err)
	}
	var extra json.RawMessage
	switch err := dec.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err != nil:
		return bodyError(err)
	default:
		return invalid("invalid request body: unexpected data after JSON value")
	}
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return invalid("invalid request body: %v", err)
}

func decodePitStop(body io.Reader) (predict.PitStopRequest, error) {
	var p pitStopPayload
	if err := decodeJSON(body, &p); err != nil {
		return predict.PitStopRequest{}, err
	}
	if err := requireFields(
		field{"driver_number", p.DriverNumber != nil},
		field{"current_lap", p.CurrentLap != nil},
		field{"tyre_age", p.TyreAge != nil},
		field{"tyre_compound", p.TyreCompound != nil},
		field{"position", p.Position != nil},
		field{"gap_to_leader", p.GapToLeader != nil},
		field{"recent_lap_times", p.RecentLapTimes != nil},
		field{"avg_speed", p.AvgSpeed != nil},
	); err != nil {
		return predict.PitStopRequest{}, err
	}
	if err := nonNegative("current_lap", *p.CurrentLap); err != nil {
		return predict.PitStopRequest{}, err
	}
	if err := nonNegative("tyre_age", *p.TyreAge); err != nil {
		return predict.PitStopRequest{}, err
	}
	return predict.PitStopRequest{
		DriverNumber:   *p.DriverNumber,
		CurrentLap:     *p.CurrentLap,
		TyreAge:        *p.TyreAge,
		TyreCompound:   *p.TyreCompound,
		Position:       *p.Position,
		GapToLeader:    *p.GapToLeader,
		RecentLapTimes: *p.RecentLapTimes,
		AvgSpeed:       *p.AvgSpeed,
	}, nil
}

func decodeLapTime(body io.Reader) (predict.LapTimeRequest, error) {
	var p lapTimePayload
	if err := decodeJSON(body, &p); err != nil {
		return predict.LapTimeRequest{}, err
	}
	if err := requireFields(
		field{"driver_number", p.DriverNumber != nil},
		field{"current_lap", p.CurrentLap != nil},
		field{"tyre_age", p.TyreAge != nil},
		field{"tyre_compound", p.TyreCompound != nil},
		field{"fuel_load", p.FuelLoad != nil},
		field{"track_temp", p.TrackTemp != nil},
		field{"recent_lap_times", p.RecentLapTimes != nil},
		field{"avg_speed", p.AvgSpeed != nil},
	); err != nil {
		return predict.LapTimeRequest{}, err
	}
	if err := nonNegative("current_lap", *p.CurrentLap); err != nil {
		return predict.LapTimeRequest{}, err
	}
	if err := nonNegative("tyre_age", *p.TyreAge); err != nil {
		return predict.LapTimeRequest{}, err
	}
	return predict.LapTimeRequest{
		DriverNumber:   *p.DriverNumber,
		CurrentLap:     *p.CurrentLap,
		TyreAge:        *p.TyreAge,
		TyreCompound:   *p.TyreCompound,
		FuelLoad:       *p.FuelLoad,
		TrackTemp:      *p.TrackTemp,
		RecentLapTimes: *p.RecentLapTimes,
		AvgSpeed:       *p.AvgSpeed,
	}, nil
}
