package ml

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
)

// Task selects what a tree stores in its leaves.
type Task string

const (
	TaskClassification Task = "classification"
	TaskRegression     Task = "regression"
)

const impurityEpsilon = 1e-12

var (
	ErrNotTrained       = errors.New("model not trained")
	ErrFeatureMismatch  = errors.New("feature count mismatch")
	errInvalidTreeState = errors.New("invalid tree state")
)

// TreeNode is one node of a flattened tree. Children are absolute indices
// into the owning tree's node slice; leaves carry class probabilities
// (classification) or a single mean (regression) in Value.
type TreeNode struct {
	FeatureIdx int       `json:"feature_idx"`
	Threshold  float64   `json:"threshold"`
	LeftChild  int       `json:"left_child"`
	RightChild int       `json:"right_child"`
	Value      []float64 `json:"value,omitempty"`
	Samples    int       `json:"samples"`
	IsLeaf     bool      `json:"is_leaf"`
}

type TreeParams struct {
	MaxDepth        int
	MinSamplesSplit int
	// MaxFeatures is the number of features examined per split; 0 means all.
	MaxFeatures int
	NumClasses  int
}

type DecisionTree struct {
	Task  Task       `json:"task"`
	Nodes []TreeNode `json:"nodes"`

	params TreeParams
}

func NewDecisionTree(task Task, params TreeParams) *DecisionTree {
	if params.MaxDepth <= 0 {
		params.MaxDepth = 10
	}
	if params.MinSamplesSplit < 2 {
		params.MinSamplesSplit = 2
	}
	if task == TaskClassification && params.NumClasses < 2 {
		params.NumClasses = 2
	}
	return &DecisionTree{Task: task, params: params}
}

// Fit grows the tree on the rows of features selected by indices. Indices may
// repeat, which is how bootstrap samples are expressed.
func (dt *DecisionTree) Fit(features [][]float64, targets []float64, indices []int, rng *rand.Rand) error {
	if len(features) == 0 || len(targets) == 0 {
		return errors.New("features or targets empty")
	}
	if len(features) != len(targets) {
		return errors.New("features and targets size mismatch")
	}
	if len(indices) == 0 {
		indices = make([]int, len(features))
		for i := range indices {
			indices[i] = i
		}
	}
	if dt.Task == TaskClassification {
		for _, idx := range indices {
			label := int(targets[idx])
			if label < 0 || label >= dt.params.NumClasses {
				return errors.Errorf("label %v out of range for %d classes", targets[idx], dt.params.NumClasses)
			}
		}
	}

	b := &treeBuilder{
		tree:     dt,
		features: features,
		targets:  targets,
		rng:      rng,
		nFeature: len(features[0]),
	}
	dt.Nodes = dt.Nodes[:0]
	b.build(append([]int(nil), indices...), 0)
	return nil
}

func (dt *DecisionTree) leaf(features []float64) (*TreeNode, error) {
	if len(dt.Nodes) == 0 {
		return nil, ErrNotTrained
	}
	idx := 0
	for steps := 0; steps < len(dt.Nodes); steps++ {
		node := &dt.Nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return nil, errors.Wrapf(ErrFeatureMismatch, "split on feature %d, got %d features", node.FeatureIdx, len(features))
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx <= 0 || idx >= len(dt.Nodes) {
			return nil, errInvalidTreeState
		}
	}
	return nil, errors.Wrap(errInvalidTreeState, "no leaf reached")
}

// validate checks the node graph of a decoded tree. Children must come after
// their parent so every walk from the root terminates.
func (dt *DecisionTree) validate(task Task, numFeatures, numClasses int) error {
	if len(dt.Nodes) == 0 || dt.Task != task {
		return errInvalidTreeState
	}
	valueLen := 1
	if task == TaskClassification {
		valueLen = numClasses
	}
	for i, node := range dt.Nodes {
		if node.IsLeaf {
			if len(node.Value) != valueLen {
				return errors.Wrapf(errInvalidTreeState, "leaf %d has %d values, want %d", i, len(node.Value), valueLen)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= numFeatures {
			return errors.Wrapf(errInvalidTreeState, "node %d splits on feature %d of %d", i, node.FeatureIdx, numFeatures)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(dt.Nodes) {
				return errors.Wrapf(errInvalidTreeState, "node %d has child %d", i, child)
			}
		}
	}
	return nil
}

// PredictProba returns the class distribution of the leaf reached by features.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	if dt.Task != TaskClassification {
		return nil, errors.Errorf("predict_proba on %s tree", dt.Task)
	}
	node, err := dt.leaf(features)
	if err != nil {
		return nil, err
	}
	return node.Value, nil
}

// PredictValue returns the leaf mean of a regression tree.
func (dt *DecisionTree) PredictValue(features []float64) (float64, error) {
	if dt.Task != TaskRegression {
		return 0, errors.Errorf("predict on %s tree", dt.Task)
	}
	node, err := dt.leaf(features)
	if err != nil {
		return 0, err
	}
	if len(node.Value) == 0 {
		return 0, errInvalidTreeState
	}
	return node.Value[0], nil
}

type treeBuilder struct {
	tree     *DecisionTree
	features [][]float64
	targets  []float64
	rng      *rand.Rand
	nFeature int
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

func (b *treeBuilder) build(indices []int, depth int) int {
	params := b.tree.params
	pos := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Value:      b.leafValue(indices),
		Samples:    len(indices),
		IsLeaf:     true,
	})

	if depth >= params.MaxDepth || len(indices) < params.MinSamplesSplit || b.impurity(indices) <= impurityEpsilon {
		return pos
	}

	best, ok := b.findBestSplit(indices)
	if !ok {
		return pos
	}
	left, right := partition(b.features, indices, best.feature, best.threshold)
	if len(left) == 0 || len(right) == 0 {
		return pos
	}

	leftIdx := b.build(left, depth+1)
	rightIdx := b.build(right, depth+1)

	node := &b.tree.Nodes[pos]
	node.FeatureIdx = best.feature
	node.Threshold = best.threshold
	node.LeftChild = leftIdx
	node.RightChild = rightIdx
	node.IsLeaf = false
	node.Value = nil
	return pos
}

// findBestSplit visits features in random order until MaxFeatures
// non-constant ones have been scored.
func (b *treeBuilder) findBestSplit(indices []int) (split, bool) {
	maxFeatures := b.tree.params.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > b.nFeature {
		maxFeatures = b.nFeature
	}

	order := b.rng.Perm(b.nFeature)
	best := split{feature: -1, impurity: math.MaxFloat64}
	sorted := make([]int, len(indices))
	visited := 0
	for _, feature := range order {
		if visited >= maxFeatures {
			break
		}
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool {
			return b.features[sorted[i]][feature] < b.features[sorted[j]][feature]
		})
		if b.features[sorted[0]][feature] == b.features[sorted[len(sorted)-1]][feature] {
			continue
		}
		visited++

		var candidate split
		var ok bool
		if b.tree.Task == TaskClassification {
			candidate, ok = b.bestGiniSplit(sorted, feature)
		} else {
			candidate, ok = b.bestVarianceSplit(sorted, feature)
		}
		if ok && candidate.impurity < best.impurity {
			best = candidate
		}
	}
	return best, best.feature >= 0
}

func (b *treeBuilder) bestGiniSplit(sorted []int, feature int) (split, bool) {
	nClasses := b.tree.params.NumClasses
	total := make([]float64, nClasses)
	for _, idx := range sorted {
		total[int(b.targets[idx])]++
	}
	left := make([]float64, nClasses)
	n := float64(len(sorted))
	best := split{feature: -1, impurity: math.MaxFloat64}

	for k := 1; k < len(sorted); k++ {
		left[int(b.targets[sorted[k-1]])]++
		prev := b.features[sorted[k-1]][feature]
		next := b.features[sorted[k]][feature]
		if prev == next {
			continue
		}
		nLeft := float64(k)
		nRight := n - nLeft
		giniLeft, giniRight := 1.0, 1.0
		for c := 0; c < nClasses; c++ {
			pl := left[c] / nLeft
			pr := (total[c] - left[c]) / nRight
			giniLeft -= pl * pl
			giniRight -= pr * pr
		}
		impurity := (nLeft*giniLeft + nRight*giniRight) / n
		if impurity < best.impurity {
			best = split{feature: feature, threshold: midpoint(prev, next), impurity: impurity}
		}
	}
	return best, best.feature >= 0
}

func (b *treeBuilder) bestVarianceSplit(sorted []int, feature int) (split, bool) {
	var sum, sumSq float64
	for _, idx := range sorted {
		y := b.targets[idx]
		sum += y
		sumSq += y * y
	}
	n := float64(len(sorted))
	var leftSum, leftSumSq float64
	best := split{feature: -1, impurity: math.MaxFloat64}

	for k := 1; k < len(sorted); k++ {
		y := b.targets[sorted[k-1]]
		leftSum += y
		leftSumSq += y * y
		prev := b.features[sorted[k-1]][feature]
		next := b.features[sorted[k]][feature]
		if prev == next {
			continue
		}
		nLeft := float64(k)
		nRight := n - nLeft
		rightSum := sum - leftSum
		sse := (leftSumSq - leftSum*leftSum/nLeft) + ((sumSq - leftSumSq) - rightSum*rightSum/nRight)
		impurity := sse / n
		if impurity < best.impurity {
			best = split{feature: feature, threshold: midpoint(prev, next), impurity: impurity}
		}
	}
	return best, best.feature >= 0
}

func (b *treeBuilder) leafValue(indices []int) []float64 {
	if b.tree.Task == TaskClassification {
		probs := make([]float64, b.tree.params.NumClasses)
		for _, idx := range indices {
			probs[int(b.targets[idx])]++
		}
		for c := range probs {
			probs[c] /= float64(len(indices))
		}
		return probs
	}
	sum := 0.0
	for _, idx := range indices {
		sum += b.targets[idx]
	}
	return []float64{sum / float64(len(indices))}
}

func (b *treeBuilder) impurity(indices []int) float64 {
	if b.tree.Task == TaskClassification {
		impurity := 1.0
		for _, p := range b.leafValue(indices) {
			impurity -= p * p
		}
		return impurity
	}
	values := make([]float64, len(indices))
	for i, idx := range indices {
		values[i] = b.targets[idx]
	}
	return PopulationVariance(values)
}

func partition(features [][]float64, indices []int, feature int, threshold float64) (left, right []int) {
	left = make([]int, 0, len(indices))
	right = make([]int, 0, len(indices))
	for _, idx := range indices {
		if features[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	return left, right
}

// midpoint falls back to prev when the halfway value rounds up to next,
// which keeps "<= threshold" sending prev left.
func midpoint(prev, next float64) float64 {
	mid := prev + (next-prev)/2
	if mid >= next {
		return prev
	}
	return mid
}
