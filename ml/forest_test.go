package ml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainPitStopForest(t *testing.T, seed int64) *RandomForest {
	t.Helper()
	features, labels, err := GeneratePitStopData(1500, DefaultSeed)
	require.NoError(t, err)
	forest := NewRandomForestClassifier(ForestParams{
		NumTrees:        25,
		MaxDepth:        10,
		MinSamplesSplit: 20,
		MaxFeatures:     SqrtFeatures(len(features[0])),
		Seed:            seed,
	})
	require.NoError(t, forest.Fit(context.Background(), features, labels))
	return forest
}

func TestRandomForestClassifierLearnsPitRule(t *testing.T) {
	forest := trainPitStopForest(t, DefaultSeed)
	require.Len(t, forest.Trees, 25)
	assert.Equal(t, 8, forest.NumFeatures)

	worn := PitStopFeatures(PitStopInput{
		CurrentLap:     30,
		TyreAge:        28,
		TyreCompound:   Soft,
		Position:       3,
		GapToLeader:    5.2,
		RecentLapTimes: []float64{91.2, 91.5, 91.8},
		AvgSpeed:       305,
	})
	probs, err := forest.PredictProba(worn)
	require.NoError(t, err)
	require.Len(t, probs, 2)
	assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-9)
	assert.Greater(t, probs[1], 0.5)

	fresh := PitStopFeatures(PitStopInput{
		CurrentLap:     5,
		TyreAge:        3,
		TyreCompound:   Hard,
		Position:       3,
		GapToLeader:    5.2,
		RecentLapTimes: []float64{91.2, 91.5, 91.8},
		AvgSpeed:       305,
	})
	probs, err = forest.PredictProba(fresh)
	require.NoError(t, err)
	assert.Less(t, probs[1], 0.5)

	label, err := forest.Predict(fresh)
	require.NoError(t, err)
	assert.Equal(t, 0.0, label)
}

func TestRandomForestDeterministic(t *testing.T) {
	a := trainPitStopForest(t, 7)
	b := trainPitStopForest(t, 7)

	row := []float64{20, 18, 0, 4, 12, 90, 0.5, 300}
	pa, err := a.PredictProba(row)
	require.NoError(t, err)
	pb, err := b.PredictProba(row)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestRandomForestRegressor(t *testing.T) {
	features, targets, err := GenerateLapTimeData(2000, DefaultSeed)
	require.NoError(t, err)
	ds, err := TrainTestSplit(features, targets, 0.2, DefaultSeed)
	require.NoError(t, err)

	forest := NewRandomForestRegressor(ForestParams{
		NumTrees:        20,
		MaxDepth:        15,
		MinSamplesSplit: 10,
		Seed:            DefaultSeed,
	})
	require.NoError(t, forest.Fit(context.Background(), ds.TrainX, ds.TrainY))

	predictions := make([]float64, len(ds.TestX))
	for i, row := range ds.TestX {
		predictions[i], err = forest.Predict(row)
		require.NoError(t, err)
	}
	metrics, err := NewRegressionMetrics(ds.TestY, predictions)
	require.NoError(t, err)
	assert.Less(t, metrics.MAE, 1.0)
	assert.Greater(t, metrics.R2, 0.2)

	_, err = forest.PredictProba(ds.TestX[0])
	assert.Error(t, err)
}

func TestRandomForestErrors(t *testing.T) {
	forest := NewRandomForestRegressor(ForestParams{NumTrees: 2})
	_, err := forest.Predict([]float64{1})
	assert.ErrorIs(t, err, ErrNotTrained)

	ctx := context.Background()
	assert.Error(t, forest.Fit(ctx, nil, nil))
	assert.Error(t, forest.Fit(ctx, [][]float64{{1}, {2}}, []float64{1}))
	assert.ErrorIs(t, forest.Fit(ctx, [][]float64{{1}, {2, 3}}, []float64{1, 2}), ErrFeatureMismatch)

	require.NoError(t, forest.Fit(ctx, [][]float64{{1}, {2}, {3}}, []float64{1, 2, 3}))
	_, err = forest.Predict([]float64{1, 2})
	assert.ErrorIs(t, err, ErrFeatureMismatch)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, NewRandomForestRegressor(ForestParams{NumTrees: 4}).Fit(cancelled, [][]float64{{1}, {2}}, []float64{1, 2}))
}

func TestSqrtFeatures(t *testing.T) {
	assert.Equal(t, 2, SqrtFeatures(8))
	assert.Equal(t, 3, SqrtFeatures(9))
	assert.Equal(t, 1, SqrtFeatures(0))
}
