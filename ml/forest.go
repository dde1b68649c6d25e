package ml

import (
	"context"
	"math"
	"math/rand"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type ForestParams struct {
	NumTrees        int
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures per split; 0 means all features.
	MaxFeatures int
	Seed        int64
	// Workers bounds parallel tree fitting; 0 means GOMAXPROCS.
	Workers int
}

// RandomForest is a bagged ensemble of CART trees. Classification forests
// average the leaf class distributions, regression forests average the leaf
// means.
type RandomForest struct {
	Task        Task            `json:"task"`
	NumClasses  int             `json:"n_classes,omitempty"`
	NumFeatures int             `json:"n_features"`
	Trees       []*DecisionTree `json:"trees"`

	params ForestParams
}

func NewRandomForestClassifier(params ForestParams) *RandomForest {
	return &RandomForest{Task: TaskClassification, NumClasses: 2, params: withForestDefaults(params)}
}

func NewRandomForestRegressor(params ForestParams) *RandomForest {
	return &RandomForest{Task: TaskRegression, params: withForestDefaults(params)}
}

func withForestDefaults(params ForestParams) ForestParams {
	if params.NumTrees <= 0 {
		params.NumTrees = 100
	}
	if params.Workers <= 0 {
		params.Workers = runtime.GOMAXPROCS(0)
	}
	return params
}

// SqrtFeatures is the usual per-split feature budget for classification forests.
func SqrtFeatures(n int) int {
	k := int(math.Sqrt(float64(n)))
	if k < 1 {
		return 1
	}
	return k
}

// Fit trains every tree on its own bootstrap sample. Per-tree seeds are drawn
// up front so the result does not depend on goroutine scheduling.
func (f *RandomForest) Fit(ctx context.Context, features [][]float64, targets []float64) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	nFeatures := len(features[0])
	for i, row := range features {
		if len(row) != nFeatures {
			return errors.Wrapf(ErrFeatureMismatch, "row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	master := rand.New(rand.NewSource(f.params.Seed))
	seeds := make([]int64, f.params.NumTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	treeParams := TreeParams{
		MaxDepth:        f.params.MaxDepth,
		MinSamplesSplit: f.params.MinSamplesSplit,
		MaxFeatures:     f.params.MaxFeatures,
		NumClasses:      f.NumClasses,
	}
	trees := make([]*DecisionTree, f.params.NumTrees)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.params.Workers)
	for i := range trees {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := make([]int, len(features))
			for j := range sample {
				sample[j] = rng.Intn(len(features))
			}
			tree := NewDecisionTree(f.Task, treeParams)
			if err := tree.Fit(features, targets, sample, rng); err != nil {
				return errors.Wrapf(err, "fit tree %d", i)
			}
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.NumFeatures = nFeatures
	f.Trees = trees
	return nil
}

func (f *RandomForest) checkInput(features []float64) error {
	if len(f.Trees) == 0 {
		return ErrNotTrained
	}
	if len(features) != f.NumFeatures {
		return errors.Wrapf(ErrFeatureMismatch, "got %d features, model expects %d", len(features), f.NumFeatures)
	}
	return nil
}

// PredictProba returns the averaged class distribution for one row.
func (f *RandomForest) PredictProba(features []float64) ([]float64, error) {
	if f.Task != TaskClassification {
		return nil, errors.Errorf("predict_proba on %s forest", f.Task)
	}
	if err := f.checkInput(features); err != nil {
		return nil, err
	}
	probs := make([]float64, f.NumClasses)
	for _, tree := range f.Trees {
		p, err := tree.PredictProba(features)
		if err != nil {
			return nil, err
		}
		if len(p) != len(probs) {
			return nil, errInvalidTreeState
		}
		for c := range probs {
			probs[c] += p[c]
		}
	}
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
	}
	return probs, nil
}

// Predict returns the most probable class for classification forests and
// the averaged estimate for regression forests.
func (f *RandomForest) Predict(features []float64) (float64, error) {
	if f.Task == TaskClassification {
		probs, err := f.PredictProba(features)
		if err != nil {
			return 0, err
		}
		best := 0
		for c := range probs {
			if probs[c] > probs[best] {
				best = c
			}
		}
		return float64(best), nil
	}

	if err := f.checkInput(features); err != nil {
		return 0, err
	}
	sum := 0.0
	for _, tree := range f.Trees {
		v, err := tree.PredictValue(features)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(f.Trees)), nil
}
