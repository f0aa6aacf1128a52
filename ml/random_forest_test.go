package ml

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomForestLearnsGlucoseBoundary(t *testing.T) {
	ds := syntheticDataset(400, 11)
	train, test, err := StratifiedSplit(ds, 0.2, 42)
	require.NoError(t, err)

	forest := NewRandomForest(ForestParams{NEstimators: 30, Seed: 42})
	require.NoError(t, forest.Train(train.Features, train.Labels))
	assert.Equal(t, 30, forest.Size())

	report, err := Evaluate(forest, test, DefaultThreshold)
	require.NoError(t, err)
	assert.Greater(t, report.Accuracy, 0.85)

	label, confidence, err := forest.Predict(exampleVector.Values())
	require.NoError(t, err)
	assert.Equal(t, 1, label)
	assert.Greater(t, confidence, 0.5)
}

func TestRandomForestDepth(t *testing.T) {
	ds := syntheticDataset(150, 5)
	forest := NewRandomForest(ForestParams{NEstimators: 5, MaxDepth: 3, Seed: 1})
	assert.Equal(t, 0, forest.Depth())
	require.NoError(t, forest.Train(ds.Features, ds.Labels))

	depth := forest.Depth()
	assert.Greater(t, depth, 0)
	assert.LessOrEqual(t, depth, 3)
}

func TestRandomForestDeterministic(t *testing.T) {
	ds := syntheticDataset(150, 5)
	a := NewRandomForest(ForestParams{NEstimators: 10, Seed: 9})
	b := NewRandomForest(ForestParams{NEstimators: 10, Seed: 9})
	require.NoError(t, a.Train(ds.Features, ds.Labels))
	require.NoError(t, b.Train(ds.Features, ds.Labels))

	for _, row := range ds.Features {
		pa, err := a.PredictProba(row)
		require.NoError(t, err)
		pb, err := b.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, pa, pb)
	}
}

func TestRandomForestProbabilityRange(t *testing.T) {
	ds := syntheticDataset(120, 13)
	forest := NewRandomForest(ForestParams{NEstimators: 15, Seed: 1})
	require.NoError(t, forest.Train(ds.Features, ds.Labels))

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 200; i++ {
		row := make([]float64, len(FeatureNames()))
		for j := range row {
			row[j] = rng.Float64() * 250
		}
		p, err := forest.PredictProba(row)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestRandomForestSaveLoad(t *testing.T) {
	ds := syntheticDataset(150, 21)
	forest := NewRandomForest(ForestParams{NEstimators: 8, Seed: 4})
	require.NoError(t, forest.Train(ds.Features, ds.Labels))

	path := filepath.Join(t.TempDir(), "models", "model_rf.json")
	require.NoError(t, forest.Save(path))

	loaded, err := LoadModel(ModelTypeRandomForest, path)
	require.NoError(t, err)
	for _, row := range ds.Features {
		want, _ := forest.PredictProba(row)
		got, err := loaded.PredictProba(row)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLoadModelRejectsFeatureMismatch(t *testing.T) {
	payload, err := os.ReadFile("testdata/model_rf.json")
	require.NoError(t, err)
	swapped := strings.Replace(string(payload), `"Pregnancies", "Glucose"`, `"Glucose", "Pregnancies"`, 1)
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(swapped), 0o600))

	_, err = LoadModel(ModelTypeRandomForest, path)
	assert.True(t, errors.Is(err, ErrFeatureMismatch))
}

func TestLoadModelRejectsWrongType(t *testing.T) {
	_, err := LoadModel(ModelTypeDecisionTree, "testdata/model_rf.json")
	assert.True(t, errors.Is(err, ErrUnsupportedModel))

	_, err = LoadModel("gradient_boosting", "testdata/model_rf.json")
	assert.True(t, errors.Is(err, ErrUnsupportedModel))
}
