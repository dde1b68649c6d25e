package training

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pitwall/ml"
)

func smallOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Samples:  2000,
		Seed:     ml.DefaultSeed,
		Trees:    20,
		ModelDir: filepath.Join(t.TempDir(), "models"),
	}
}

func TestTrainPitStop(t *testing.T) {
	opts := smallOptions(t)
	res, err := TrainPitStop(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1600, res.TrainSize)
	assert.Equal(t, 400, res.TestSize)
	assert.Equal(t, 400, res.Report.Total)
	assert.Greater(t, res.ROCAUC, 0.7)
	assert.Greater(t, res.Report.Accuracy, 0.7)
	assert.Equal(t, filepath.Join(opts.ModelDir, ml.PitStopModelFile), res.ModelPath)

	forest, err := ml.LoadClassifier(res.ModelPath, ml.PitStopFeatureNames())
	require.NoError(t, err)
	assert.Len(t, forest.Trees, 20)

	run := res.TrainingRun()
	assert.Equal(t, PitStopModelName, run.ModelName)
	assert.Equal(t, "classification", run.Task)
	require.NotNil(t, run.ROCAUC)
	assert.Equal(t, res.ROCAUC, *run.ROCAUC)
	assert.Nil(t, run.MAE)
}

func TestTrainPitStopIsDeterministic(t *testing.T) {
	first, err := TrainPitStop(context.Background(), smallOptions(t), zap.NewNop())
	require.NoError(t, err)

	opts := smallOptions(t)
	opts.Workers = 1
	second, err := TrainPitStop(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, first.ROCAUC, second.ROCAUC)
	assert.Equal(t, first.Report, second.Report)
}

func TestTrainLapTime(t *testing.T) {
	opts := smallOptions(t)
	res, err := TrainLapTime(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 1600, res.TrainSize)
	assert.Equal(t, 400, res.TestSize)
	assert.Less(t, res.Metrics.MAE, 1.0)
	assert.Greater(t, res.Metrics.R2, 0.3)

	_, err = ml.LoadRegressor(res.ModelPath, ml.LapTimeFeatureNames())
	require.NoError(t, err)

	run := res.TrainingRun()
	assert.Equal(t, LapTimeModelName, run.ModelName)
	assert.Equal(t, "regression", run.Task)
	require.NotNil(t, run.R2)
	assert.Nil(t, run.Accuracy)
}

func TestTrainHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := TrainLapTime(ctx, smallOptions(t), zap.NewNop())
	assert.Error(t, err)
}

func TestReports(t *testing.T) {
	opts := smallOptions(t)
	opts.Samples = 500
	opts.Trees = 5

	pit, err := TrainPitStop(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	var buf bytes.Buffer
	WritePitStopReport(&buf, pit)
	assert.Contains(t, buf.String(), "Training samples: 400, Test samples: 100")
	assert.Contains(t, buf.String(), "weighted avg")
	assert.Contains(t, buf.String(), "ROC-AUC Score:")

	lap, err := TrainLapTime(context.Background(), opts, zap.NewNop())
	require.NoError(t, err)
	buf.Reset()
	WriteLapTimeReport(&buf, lap)
	assert.Contains(t, buf.String(), "Training samples: 400, Test samples: 100")
	assert.Contains(t, buf.String(), "MAE")
	assert.Contains(t, buf.String(), lap.ModelPath)
}

func TestOptionDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, ml.DefaultSamples, opts.Samples)
	assert.Equal(t, DefaultTrees, opts.Trees)
	assert.Equal(t, DefaultTestRatio, opts.TestRatio)
	assert.Equal(t, "saved_models", opts.ModelDir)
}
