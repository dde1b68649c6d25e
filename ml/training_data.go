package ml

import (
	"math/rand"

	"github.com/pkg/errors"
)

const (
	DefaultSamples = 5000
	DefaultSeed    = 42

	pitStopLabelNoise = 0.15
	lapTimeNoiseStd   = 0.5
	baseLapTime       = 88.0
)

// PitStopLabel is the synthetic ground truth: old tyres, or moderately old
// softs, are due a stop.
func PitStopLabel(tyreAge int, compound TyreCompound) bool {
	return tyreAge > 25 || (tyreAge > 15 && compound == Soft)
}

// ExpectedLapTime is the noise-free lap time of the synthetic lap-time data.
func ExpectedLapTime(tyreAge int, compound TyreCompound, fuelLoad, trackTemp float64) float64 {
	degradation := float64(tyreAge) * 0.03
	if compound == Soft {
		degradation = float64(tyreAge) * 0.05
	}
	fuelEffect := (fuelLoad - 50) * 0.02
	tempEffect := (trackTemp - 35) * 0.05
	return baseLapTime + degradation + fuelEffect + tempEffect
}

// GeneratePitStopData draws n rows in PitStopFeatureNames order. Labels are
// 0/1 and flipped with probability 0.15.
func GeneratePitStopData(n int, seed int64) ([][]float64, []float64, error) {
	if n <= 0 {
		return nil, nil, errors.New("n must be positive")
	}
	rng := rand.New(rand.NewSource(seed))
	features := make([][]float64, 0, n)
	labels := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		lap := 1 + rng.Intn(59)
		tyreAge := rng.Intn(40)
		compound := TyreCompound(rng.Intn(3))
		position := 1 + rng.Intn(20)
		gap := uniform(rng, 0, 60)
		avgLap := uniform(rng, 85, 95)
		variance := uniform(rng, 0, 2)
		speed := uniform(rng, 280, 320)

		pit := PitStopLabel(tyreAge, compound)
		if rng.Float64() < pitStopLabelNoise {
			pit = !pit
		}
		label := 0.0
		if pit {
			label = 1
		}

		features = append(features, []float64{
			float64(lap), float64(tyreAge), float64(compound), float64(position),
			gap, avgLap, variance, speed,
		})
		labels = append(labels, label)
	}
	return features, labels, nil
}

// GenerateLapTimeData draws n rows in LapTimeFeatureNames order with
// ExpectedLapTime plus N(0, 0.5) noise as the target.
func GenerateLapTimeData(n int, seed int64) ([][]float64, []float64, error) {
	if n <= 0 {
		return nil, nil, errors.New("n must be positive")
	}
	rng := rand.New(rand.NewSource(seed))
	features := make([][]float64, 0, n)
	lapTimes := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		lap := 1 + rng.Intn(59)
		tyreAge := rng.Intn(40)
		compound := TyreCompound(rng.Intn(3))
		fuelLoad := uniform(rng, 20, 100)
		trackTemp := uniform(rng, 25, 50)
		avgRecent := uniform(rng, 85, 95)
		trend := uniform(rng, -2, 2)
		speed := uniform(rng, 280, 320)

		lapTime := ExpectedLapTime(tyreAge, compound, fuelLoad, trackTemp) + rng.NormFloat64()*lapTimeNoiseStd

		features = append(features, []float64{
			float64(lap), float64(tyreAge), float64(compound),
			fuelLoad, trackTemp, avgRecent, trend, speed,
		})
		lapTimes = append(lapTimes, lapTime)
	}
	return features, lapTimes, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}
