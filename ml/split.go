package ml

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

type Dataset struct {
	TrainX [][]float64
	TrainY []float64
	TestX  [][]float64
	TestY  []float64
}

// TrainTestSplit shuffles with seed and holds out ceil(n*testRatio) rows.
func TrainTestSplit(features [][]float64, targets []float64, testRatio float64, seed int64) (*Dataset, error) {
	if len(features) != len(targets) {
		return nil, errors.New("features and targets size mismatch")
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, errors.Errorf("test ratio %v outside (0, 1)", testRatio)
	}
	nTest := int(math.Ceil(float64(len(features)) * testRatio))
	if nTest == 0 || nTest >= len(features) {
		return nil, errors.Errorf("cannot hold out %d of %d rows", nTest, len(features))
	}

	perm := rand.New(rand.NewSource(seed)).Perm(len(features))
	ds := &Dataset{
		TrainX: make([][]float64, 0, len(features)-nTest),
		TrainY: make([]float64, 0, len(features)-nTest),
		TestX:  make([][]float64, 0, nTest),
		TestY:  make([]float64, 0, nTest),
	}
	for i, idx := range perm {
		if i < nTest {
			ds.TestX = append(ds.TestX, features[idx])
			ds.TestY = append(ds.TestY, targets[idx])
		} else {
			ds.TrainX = append(ds.TrainX, features[idx])
			ds.TrainY = append(ds.TrainY, targets[idx])
		}
	}
	return ds, nil
}
