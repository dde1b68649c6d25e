package ml

import "math"

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationVariance divides by n, not n-1. Fewer than two values give 0.
func PopulationVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	return variance / float64(len(values))
}

// Trend is last minus first; fewer than two values give 0.
func Trend(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	return values[len(values)-1] - values[0]
}

// Round3 rounds half away from zero to three decimal places.
func Round3(value float64) float64 {
	return math.Round(value*1000) / 1000
}
