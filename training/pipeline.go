// Package training holds the offline pipelines that generate synthetic race
// data, fit the forests, evaluate them and write the model artifacts.
package training

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pitwall/db"
	"pitwall/ml"
)

const (
	PitStopModelName = "pitstop"
	LapTimeModelName = "laptime"

	DefaultTrees     = 100
	DefaultTestRatio = 0.2
)

type Options struct {
	Samples   int
	Seed      int64
	Trees     int
	ModelDir  string
	TestRatio float64
	// Workers bounds parallel tree fitting; 0 means GOMAXPROCS.
	Workers int
}

func DefaultOptions() Options {
	return Options{
		Samples:   ml.DefaultSamples,
		Seed:      ml.DefaultSeed,
		Trees:     DefaultTrees,
		ModelDir:  "saved_models",
		TestRatio: DefaultTestRatio,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Samples <= 0 {
		o.Samples = d.Samples
	}
	if o.Trees <= 0 {
		o.Trees = d.Trees
	}
	if o.ModelDir == "" {
		o.ModelDir = d.ModelDir
	}
	if o.TestRatio <= 0 || o.TestRatio >= 1 {
		o.TestRatio = d.TestRatio
	}
	return o
}

type PitStopResult struct {
	Options   Options
	TrainSize int
	TestSize  int
	Report    *ml.ClassificationReport
	ROCAUC    float64
	ModelPath string
	Elapsed   time.Duration
}

type LapTimeResult struct {
	Options   Options
	TrainSize int
	TestSize  int
	Metrics   *ml.RegressionMetrics
	ModelPath string
	Elapsed   time.Duration
}

// TrainPitStop fits the pit-stop classifier and writes pitstop_model.json
// into opts.ModelDir.
func TrainPitStop(ctx context.Context, opts Options, logger *zap.Logger) (*PitStopResult, error) {
	opts = opts.withDefaults()
	start := time.Now()

	X, y, err := ml.GeneratePitStopData(opts.Samples, opts.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "generate pit stop data")
	}
	ds, err := ml.TrainTestSplit(X, y, opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "split pit stop data")
	}
	logger.Info("training pit stop classifier",
		zap.Int("train", len(ds.TrainX)),
		zap.Int("test", len(ds.TestX)),
		zap.Int("trees", opts.Trees))

	forest := ml.NewRandomForestClassifier(ml.ForestParams{
		NumTrees:        opts.Trees,
		MaxDepth:        10,
		MinSamplesSplit: 20,
		MaxFeatures:     ml.SqrtFeatures(len(ml.PitStopFeatureNames())),
		Seed:            opts.Seed,
		Workers:         opts.Workers,
	})
	if err := forest.Fit(ctx, ds.TrainX, ds.TrainY); err != nil {
		return nil, errors.Wrap(err, "fit pit stop classifier")
	}

	yTrue := make([]int, len(ds.TestX))
	yPred := make([]int, len(ds.TestX))
	scores := make([]float64, len(ds.TestX))
	for i, row := range ds.TestX {
		probs, err := forest.PredictProba(row)
		if err != nil {
			return nil, errors.Wrapf(err, "score test row %d", i)
		}
		yTrue[i] = int(ds.TestY[i])
		scores[i] = probs[1]
		if probs[1] > probs[0] {
			yPred[i] = 1
		}
	}
	report, err := ml.NewClassificationReport(yTrue, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "classification report")
	}
	auc, err := ml.ROCAUC(yTrue, scores)
	if err != nil {
		return nil, errors.Wrap(err, "roc auc")
	}

	path, err := save(opts.ModelDir, ml.PitStopModelFile, forest, ml.PitStopFeatureNames())
	if err != nil {
		return nil, err
	}
	logger.Info("pit stop model saved", zap.String("path", path), zap.Float64("roc_auc", auc))

	return &PitStopResult{
		Options:   opts,
		TrainSize: len(ds.TrainX),
		TestSize:  len(ds.TestX),
		Report:    report,
		ROCAUC:    auc,
		ModelPath: path,
		Elapsed:   time.Since(start),
	}, nil
}

// TrainLapTime fits the lap-time regressor and writes laptime_model.json
// into opts.ModelDir.
func TrainLapTime(ctx context.Context, opts Options, logger *zap.Logger) (*LapTimeResult, error) {
	opts = opts.withDefaults()
	start := time.Now()

	X, y, err := ml.GenerateLapTimeData(opts.Samples, opts.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "generate lap time data")
	}
	ds, err := ml.TrainTestSplit(X, y, opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, errors.Wrap(err, "split lap time data")
	}
	logger.Info("training lap time regressor",
		zap.Int("train", len(ds.TrainX)),
		zap.Int("test", len(ds.TestX)),
		zap.Int("trees", opts.Trees))

	forest := ml.NewRandomForestRegressor(ml.ForestParams{
		NumTrees:        opts.Trees,
		MaxDepth:        15,
		MinSamplesSplit: 10,
		Seed:            opts.Seed,
		Workers:         opts.Workers,
	})
	if err := forest.Fit(ctx, ds.TrainX, ds.TrainY); err != nil {
		return nil, errors.Wrap(err, "fit lap time regressor")
	}

	yPred := make([]float64, len(ds.TestX))
	for i, row := range ds.TestX {
		if yPred[i], err = forest.Predict(row); err != nil {
			return nil, errors.Wrapf(err, "score test row %d", i)
		}
	}
	metrics, err := ml.NewRegressionMetrics(ds.TestY, yPred)
	if err != nil {
		return nil, errors.Wrap(err, "regression metrics")
	}

	path, err := save(opts.ModelDir, ml.LapTimeModelFile, forest, ml.LapTimeFeatureNames())
	if err != nil {
		return nil, err
	}
	logger.Info("lap time model saved", zap.String("path", path), zap.Float64("mae", metrics.MAE))

	return &LapTimeResult{
		Options:   opts,
		TrainSize: len(ds.TrainX),
		TestSize:  len(ds.TestX),
		Metrics:   metrics,
		ModelPath: path,
		Elapsed:   time.Since(start),
	}, nil
}

func save(dir, file string, forest *ml.RandomForest, featureNames []string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create model dir: %s", dir)
	}
	path := filepath.Join(dir, file)
	if err := ml.SaveModel(path, forest, featureNames); err != nil {
		return "", errors.Wrap(err, "save model")
	}
	return path, nil
}

// TrainingRun converts the result into a training_log row.
func (r *PitStopResult) TrainingRun() db.TrainingRun {
	positive := r.Report.Class(1)
	return db.TrainingRun{
		ModelName:    PitStopModelName,
		Task:         string(ml.TaskClassification),
		Samples:      r.Options.Samples,
		TrainSamples: r.TrainSize,
		TestSamples:  r.TestSize,
		Seed:         r.Options.Seed,
		Trees:        r.Options.Trees,
		Accuracy:     ptr(r.Report.Accuracy),
		Precision:    ptr(positive.Precision),
		Recall:       ptr(positive.Recall),
		ROCAUC:       ptr(r.ROCAUC),
		ArtifactPath: r.ModelPath,
	}
}

func (r *LapTimeResult) TrainingRun() db.TrainingRun {
	return db.TrainingRun{
		ModelName:    LapTimeModelName,
		Task:         string(ml.TaskRegression),
		Samples:      r.Options.Samples,
		TrainSamples: r.TrainSize,
		TestSamples:  r.TestSize,
		Seed:         r.Options.Seed,
		Trees:        r.Options.Trees,
		MAE:          ptr(r.Metrics.MAE),
		MSE:          ptr(r.Metrics.MSE),
		R2:           ptr(r.Metrics.R2),
		ArtifactPath: r.ModelPath,
	}
}

func ptr(v float64) *float64 { return &v }
