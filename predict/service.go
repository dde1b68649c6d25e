// Package predict owns the loaded models and turns requests into responses.
package predict

import (
	"context"
	"math"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pitwall/db"
	"pitwall/ml"
	"pitwall/monitoring"
)

// Recorder receives an audit row for every successful prediction.
type Recorder interface {
	SavePrediction(ctx context.Context, rec db.PredictionRecord) error
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) { s.recorder = recorder }
}

func WithMetrics(metrics *monitoring.MetricsCollector) Option {
	return func(s *Service) { s.metrics = metrics }
}

// Service holds the two model handles. A nil handle means the model is not
// loaded; handles never change after construction.
type Service struct {
	pitStop ml.Classifier
	lapTime ml.Regressor

	logger   *zap.Logger
	recorder Recorder
	metrics  *monitoring.MetricsCollector
}

func NewService(pitStop ml.Classifier, lapTime ml.Regressor, opts ...Option) *Service {
	s := &Service{
		pitStop: pitStop,
		lapTime: lapTime,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.metrics.SetGauge("model_loaded", loadedValue(s.pitStop != nil), map[string]string{"model": PitStopModel})
		s.metrics.SetGauge("model_loaded", loadedValue(s.lapTime != nil), map[string]string{"model": LapTimeModel})
	}
	return s
}

func loadedValue(loaded bool) float64 {
	if loaded {
		return 1
	}
	return 0
}

// Load reads both artifacts from dir. The returned service is always usable:
// a model whose artifact is missing or unreadable stays unloaded and its
// failure is reported in err.
func Load(dir string, opts ...Option) (*Service, error) {
	var errs error

	var pitStop ml.Classifier
	forest, err := ml.LoadClassifier(filepath.Join(dir, ml.PitStopModelFile), ml.PitStopFeatureNames())
	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "pit stop model"))
	} else {
		pitStop = forest
	}

	var lapTime ml.Regressor
	forest, err = ml.LoadRegressor(filepath.Join(dir, ml.LapTimeModelFile), ml.LapTimeFeatureNames())
	if err != nil {
		errs = multierr.Append(errs, errors.Wrap(err, "lap time model"))
	} else {
		lapTime = forest
	}

	s := NewService(pitStop, lapTime, opts...)
	s.logger.Info("model load finished",
		zap.String("dir", dir),
		zap.Bool(PitStopModel, s.pitStop != nil),
		zap.Bool(LapTimeModel, s.lapTime != nil))
	return s, errs
}

func (s *Service) Health() Health {
	return Health{
		Status: "healthy",
		ModelsLoaded: ModelsLoaded{
			PitStop: s.pitStop != nil,
			LapTime: s.lapTime != nil,
		},
	}
}

func (s *Service) PredictPitStop(ctx context.Context, req PitStopRequest) (PitStopResponse, error) {
	if s.pitStop == nil {
		s.count(PitStopModel, "unavailable")
		return PitStopResponse{}, &UnavailableError{Model: PitStopModel}
	}

	start := time.Now()
	features := ml.PitStopFeatures(req.input())
	probs, err := s.pitStop.PredictProba(features)
	if err != nil {
		return PitStopResponse{}, s.fail(PitStopModel, err)
	}
	if len(probs) < 2 {
		return PitStopResponse{}, s.fail(PitStopModel, errors.Errorf("expected 2 class probabilities, got %d", len(probs)))
	}
	p := probs[1]
	if math.IsNaN(p) || p < 0 || p > 1 {
		return PitStopResponse{}, s.fail(PitStopModel, errors.Errorf("probability %v outside [0, 1]", p))
	}

	resp := PitStopResponse{
		DriverNumber:   req.DriverNumber,
		PitProbability: ml.Round3(p),
		Recommendation: Recommendation(p),
		Confidence:     ml.Round3(math.Max(p, 1-p)),
	}
	s.observe(ctx, PitStopModel, req.DriverNumber, features, p, start)
	return resp, nil
}

func (s *Service) PredictNextLap(ctx context.Context, req LapTimeRequest) (LapTimeResponse, error) {
	if s.lapTime == nil {
		s.count(LapTimeModel, "unavailable")
		return LapTimeResponse{}, &UnavailableError{Model: LapTimeModel}
	}

	start := time.Now()
	features := ml.LapTimeFeatures(req.input())
	pred, err := s.lapTime.Predict(features)
	if err != nil {
		return LapTimeResponse{}, s.fail(LapTimeModel, err)
	}
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		return LapTimeResponse{}, s.fail(LapTimeModel, errors.Errorf("non-finite lap time %v", pred))
	}

	resp := LapTimeResponse{
		DriverNumber:     req.DriverNumber,
		PredictedLapTime: ml.Round3(pred),
		ConfidenceInterval: [2]float64{
			ml.Round3(pred - ConfidenceRange),
			ml.Round3(pred + ConfidenceRange),
		},
	}
	s.observe(ctx, LapTimeModel, req.DriverNumber, features, pred, start)
	return resp, nil
}

func (s *Service) fail(model string, err error) error {
	s.count(model, "error")
	return &PredictionError{Model: model, Err: err}
}

func (s *Service) observe(ctx context.Context, model string, driver int, features []float64, output float64, start time.Time) {
	s.count(model, "ok")
	if s.metrics != nil {
		s.metrics.RecordHistogram("prediction_latency_ms",
			float64(time.Since(start).Microseconds())/1000,
			map[string]string{"model": model})
	}
	if s.recorder == nil {
		return
	}
	err := s.recorder.SavePrediction(ctx, db.PredictionRecord{
		ModelName:    model,
		DriverNumber: driver,
		Features:     features,
		Output:       output,
	})
	if err != nil {
		s.logger.Warn("record prediction", zap.String("model", model), zap.Error(err))
	}
}

func (s *Service) count(model, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrCounter("predictions_total", 1, map[string]string{"model": model, "outcome": outcome})
}
