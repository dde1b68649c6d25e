package ml

// Classifier exposes class probabilities for a single feature row.
type Classifier interface {
	PredictProba(features []float64) ([]float64, error)
}

// Regressor exposes a scalar estimate for a single feature row.
type Regressor interface {
	Predict(features []float64) (float64, error)
}

var (
	_ Classifier = (*RandomForest)(nil)
	_ Regressor  = (*RandomForest)(nil)
)
