package ml

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ForestParams mirrors the knobs exposed in config. MaxFeatures <= 0 selects
// floor(sqrt(feature count)) per split.
type ForestParams struct {
	NEstimators     int   `json:"n_estimators" yaml:"n_estimators"`
	MaxDepth        int   `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int   `json:"min_samples_split" yaml:"min_samples_split"`
	MaxFeatures     int   `json:"max_features" yaml:"max_features"`
	Seed            int64 `json:"seed" yaml:"seed"`
}

func DefaultForestParams() ForestParams {
	return ForestParams{
		NEstimators:     100,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

func (p ForestParams) treeParams(seed int64) TreeParams {
	return TreeParams{
		MaxDepth:        p.MaxDepth,
		MinSamplesSplit: p.MinSamplesSplit,
		MaxFeatures:     p.MaxFeatures,
		Seed:            seed,
	}
}

// RandomForest averages the class 1 leaf fractions of trees grown on
// bootstrap samples.
type RandomForest struct {
	params ForestParams
	trees  []*DecisionTree
}

func NewRandomForest(params ForestParams) *RandomForest {
	if params.NEstimators <= 0 {
		params.NEstimators = DefaultForestParams().NEstimators
	}
	return &RandomForest{params: params}
}

func (rf *RandomForest) Name() string {
	return ModelTypeRandomForest
}

func (rf *RandomForest) Params() ForestParams {
	return rf.params
}

func (rf *RandomForest) Train(features [][]float64, labels []int) error {
	if err := checkTrainingSet(features, labels); err != nil {
		return err
	}

	params := rf.params
	if params.MaxFeatures <= 0 {
		params.MaxFeatures = int(math.Sqrt(float64(len(features[0]))))
	}

	// Seeds are drawn up front so the forest does not depend on goroutine
	// scheduling.
	master := rand.New(rand.NewSource(params.Seed))
	seeds := make([]int64, params.NEstimators)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	trees := make([]*DecisionTree, params.NEstimators)
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range trees {
		i := i
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := make([]int, len(features))
			for j := range sample {
				sample[j] = rng.Intn(len(features))
			}
			tree := NewDecisionTree(params.treeParams(seeds[i]))
			tree.fit(features, labels, sample, rng)
			trees[i] = tree
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	rf.trees = trees
	return nil
}

func (rf *RandomForest) PredictProba(features []float64) (float64, error) {
	if len(rf.trees) == 0 {
		return 0, ErrModelNotTrained
	}
	sum := 0.0
	for i, tree := range rf.trees {
		p, err := tree.PredictProba(features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += p
	}
	return sum / float64(len(rf.trees)), nil
}

// Predict returns the argmax class and its averaged probability.
func (rf *RandomForest) Predict(features []float64) (int, float64, error) {
	p, err := rf.PredictProba(features)
	if err != nil {
		return 0, 0, err
	}
	if p > 0.5 {
		return 1, p, nil
	}
	return 0, 1 - p, nil
}

func (rf *RandomForest) Size() int {
	return len(rf.trees)
}

// Depth is the depth of the deepest tree.
func (rf *RandomForest) Depth() int {
	deepest := 0
	for _, tree := range rf.trees {
		deepest = max(deepest, tree.Depth())
	}
	return deepest
}

func (rf *RandomForest) Save(path string) error {
	if len(rf.trees) == 0 {
		return ErrModelNotTrained
	}
	trees := make([][]TreeNode, len(rf.trees))
	for i, tree := range rf.trees {
		trees[i] = tree.nodes
	}
	return writeArtifact(path, artifact{
		ModelType:    ModelTypeRandomForest,
		FeatureNames: FeatureNames(),
		Params:       rf.params,
		Trees:        trees,
	})
}

func (rf *RandomForest) Load(path string) error {
	a, err := readArtifact(path, ModelTypeRandomForest)
	if err != nil {
		return err
	}
	if a.Params.NEstimators != 0 && a.Params.NEstimators != len(a.Trees) {
		return errors.New("random forest artifact tree count does not match n_estimators")
	}
	trees := make([]*DecisionTree, len(a.Trees))
	for i, nodes := range a.Trees {
		trees[i] = &DecisionTree{params: a.Params.treeParams(a.Params.Seed), nodes: nodes}
	}
	rf.params = a.Params
	rf.trees = trees
	return nil
}
