package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// TreeParams controls how a single tree grows. Zero values mean unlimited
// depth, a minimum of two samples per split and every feature at each split.
type TreeParams struct {
	MaxDepth        int   `json:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split"`
	MaxFeatures     int   `json:"max_features"`
	Seed            int64 `json:"seed"`
}

type DecisionTree struct {
	params TreeParams
	nodes  []TreeNode
}

// TreeNode is one entry of the flattened tree. Children are absolute indexes
// into the node slice; Positive is the fraction of class 1 samples that
// reached the node during training.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	Positive   float64 `json:"positive"`
	Samples    int     `json:"samples"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(params TreeParams) *DecisionTree {
	return &DecisionTree{params: params}
}

func (dt *DecisionTree) Name() string {
	return ModelTypeDecisionTree
}

func (dt *DecisionTree) Train(features [][]float64, labels []int) error {
	if err := checkTrainingSet(features, labels); err != nil {
		return err
	}
	indices := make([]int, len(features))
	for i := range indices {
		indices[i] = i
	}
	dt.fit(features, labels, indices, rand.New(rand.NewSource(dt.params.Seed)))
	return nil
}

// fit grows the tree over the rows selected by indices. Bootstrap samples pass
// repeated indexes.
func (dt *DecisionTree) fit(features [][]float64, labels []int, indices []int, rng *rand.Rand) {
	dt.nodes = nil
	minSplit := dt.params.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	dt.grow(features, labels, indices, 0, minSplit, rng)
}

func (dt *DecisionTree) grow(features [][]float64, labels []int, indices []int, depth, minSplit int, rng *rand.Rand) int {
	positives := countPositive(labels, indices)
	node := TreeNode{
		FeatureIdx: -1,
		LeftChild:  -1,
		RightChild: -1,
		Positive:   float64(positives) / float64(len(indices)),
		Samples:    len(indices),
		IsLeaf:     true,
	}
	// ties go to the negative class
	if positives*2 > len(indices) {
		node.ClassLabel = 1
	}
	at := len(dt.nodes)
	dt.nodes = append(dt.nodes, node)

	if positives == 0 || positives == len(indices) || len(indices) < minSplit {
		return at
	}
	if dt.params.MaxDepth > 0 && depth >= dt.params.MaxDepth {
		return at
	}

	featureIdx, threshold, ok := dt.findBestSplit(features, labels, indices, rng)
	if !ok {
		return at
	}
	left, right := partition(features, indices, featureIdx, threshold)
	if len(left) == 0 || len(right) == 0 {
		return at
	}

	leftAt := dt.grow(features, labels, left, depth+1, minSplit, rng)
	rightAt := dt.grow(features, labels, right, depth+1, minSplit, rng)

	dt.nodes[at].FeatureIdx = featureIdx
	dt.nodes[at].Threshold = threshold
	dt.nodes[at].LeftChild = leftAt
	dt.nodes[at].RightChild = rightAt
	dt.nodes[at].IsLeaf = false
	return at
}

// findBestSplit draws features in random order and evaluates up to
// MaxFeatures of them. Constant features do not count against the budget.
func (dt *DecisionTree) findBestSplit(features [][]float64, labels []int, indices []int, rng *rand.Rand) (int, float64, bool) {
	featureCount := len(features[0])
	budget := dt.params.MaxFeatures
	if budget <= 0 || budget > featureCount {
		budget = featureCount
	}

	bestFeature := -1
	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64
	sorted := make([]int, len(indices))

	evaluated := 0
	for _, featureIdx := range rng.Perm(featureCount) {
		if evaluated >= budget {
			break
		}
		copy(sorted, indices)
		sort.SliceStable(sorted, func(a, b int) bool {
			return features[sorted[a]][featureIdx] < features[sorted[b]][featureIdx]
		})
		if features[sorted[0]][featureIdx] == features[sorted[len(sorted)-1]][featureIdx] {
			continue
		}
		evaluated++

		threshold, impurity := bestThresholdFor(features, labels, sorted, featureIdx)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestFeature = featureIdx
			bestThreshold = threshold
		}
	}
	if bestFeature == -1 {
		return -1, 0, false
	}
	return bestFeature, bestThreshold, true
}

// bestThresholdFor sweeps rows sorted by one feature and returns the midpoint
// threshold with the lowest weighted Gini impurity.
func bestThresholdFor(features [][]float64, labels []int, sorted []int, featureIdx int) (float64, float64) {
	total := len(sorted)
	totalPositive := countPositive(labels, sorted)

	bestThreshold := 0.0
	bestImpurity := math.MaxFloat64
	leftPositive := 0
	for i := 0; i < total-1; i++ {
		leftPositive += labels[sorted[i]]
		current := features[sorted[i]][featureIdx]
		next := features[sorted[i+1]][featureIdx]
		if current == next {
			continue
		}
		leftCount := i + 1
		rightCount := total - leftCount
		impurity := weightedGini(leftPositive, leftCount, totalPositive-leftPositive, rightCount)
		if impurity < bestImpurity {
			bestImpurity = impurity
			bestThreshold = current + (next-current)/2
		}
	}
	return bestThreshold, bestImpurity
}

func (dt *DecisionTree) Predict(features []float64) (int, float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, 0, err
	}
	if leaf.ClassLabel == 1 {
		return 1, leaf.Positive, nil
	}
	return 0, 1 - leaf.Positive, nil
}

func (dt *DecisionTree) PredictProba(features []float64) (float64, error) {
	leaf, err := dt.leaf(features)
	if err != nil {
		return 0, err
	}
	return leaf.Positive, nil
}

func (dt *DecisionTree) leaf(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, ErrModelNotTrained
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
	return TreeNode{}, errors.New("invalid tree state: cycle detected")
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (dt *DecisionTree) Depth() int {
	if len(dt.nodes) == 0 {
		return 0
	}
	var walk func(idx int) int
	walk = func(idx int) int {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return 0
		}
		return 1 + max(walk(node.LeftChild), walk(node.RightChild))
	}
	return walk(0)
}

func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return ErrModelNotTrained
	}
	return writeArtifact(path, artifact{
		ModelType:    ModelTypeDecisionTree,
		FeatureNames: FeatureNames(),
		Params:       ForestParams{NEstimators: 1, MaxDepth: dt.params.MaxDepth, MinSamplesSplit: dt.params.MinSamplesSplit, MaxFeatures: dt.params.MaxFeatures, Seed: dt.params.Seed},
		Trees:        [][]TreeNode{dt.nodes},
	})
}

func (dt *DecisionTree) Load(path string) error {
	a, err := readArtifact(path, ModelTypeDecisionTree)
	if err != nil {
		return err
	}
	if len(a.Trees) != 1 {
		return errors.New("decision tree artifact must hold exactly one tree")
	}
	dt.params = a.Params.treeParams(a.Params.Seed)
	dt.nodes = a.Trees[0]
	return nil
}

func partition(features [][]float64, indices []int, featureIdx int, threshold float64) ([]int, []int) {
	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if features[i][featureIdx] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func weightedGini(leftPositive, leftCount, rightPositive, rightCount int) float64 {
	total := float64(leftCount + rightCount)
	return (float64(leftCount)/total)*gini(leftPositive, leftCount) +
		(float64(rightCount)/total)*gini(rightPositive, rightCount)
}

func gini(positive, count int) float64 {
	if count == 0 {
		return 0
	}
	p := float64(positive) / float64(count)
	return 1 - p*p - (1-p)*(1-p)
}

func countPositive(labels []int, indices []int) int {
	n := 0
	for _, i := range indices {
		n += labels[i]
	}
	return n
}

func checkTrainingSet(features [][]float64, labels []int) error {
	if len(features) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(features) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	width := len(features[0])
	if width == 0 {
		return errors.New("feature rows are empty")
	}
	for i, row := range features {
		if len(row) != width {
			return errors.New("feature rows have different lengths")
		}
		if labels[i] != 0 && labels[i] != 1 {
			return errors.New("labels must be 0 or 1")
		}
	}
	return nil
}
