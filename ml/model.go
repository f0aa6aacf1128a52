package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	ModelTypeDecisionTree = "decision_tree"
	ModelTypeRandomForest = "random_forest"
)

var (
	ErrModelNotTrained  = errors.New("model not trained")
	ErrFeatureMismatch  = errors.New("model feature names do not match the expected feature order")
	ErrUnsupportedModel = errors.New("unsupported model type")
)

type MLModel interface {
	Name() string
	Train(features [][]float64, labels []int) error
	Predict(features []float64) (int, float64, error)
	PredictProba(features []float64) (float64, error)
	Save(path string) error
	Load(path string) error
}

// NewModel returns an untrained model of the given type.
func NewModel(modelType string, params ForestParams) (MLModel, error) {
	switch modelType {
	case ModelTypeRandomForest:
		return NewRandomForest(params), nil
	case ModelTypeDecisionTree:
		return NewDecisionTree(params.treeParams(params.Seed)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
}

// artifact is the on-disk form of every model. FeatureNames pins the column
// order the trees index into.
type artifact struct {
	ModelType    string       `json:"model_type"`
	FeatureNames []string     `json:"feature_names"`
	Params       ForestParams `json:"params"`
	SavedAt      time.Time    `json:"saved_at"`
	Trees        [][]TreeNode `json:"trees"`
}

// writeArtifact writes through a temp file and renames it so readers never
// observe a partial model.
func writeArtifact(path string, a artifact) error {
	if a.SavedAt.IsZero() {
		a.SavedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".model-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readArtifact(path, modelType string) (artifact, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return artifact{}, err
	}
	var a artifact
	if err := json.Unmarshal(payload, &a); err != nil {
		return artifact{}, fmt.Errorf("decode model %s: %w", path, err)
	}
	if a.ModelType != modelType {
		return artifact{}, fmt.Errorf("%w: file holds %q, expected %q", ErrUnsupportedModel, a.ModelType, modelType)
	}
	if !slices.Equal(a.FeatureNames, FeatureNames()) {
		return artifact{}, fmt.Errorf("%w: %v", ErrFeatureMismatch, a.FeatureNames)
	}
	if len(a.Trees) == 0 {
		return artifact{}, ErrModelNotTrained
	}
	for i, tree := range a.Trees {
		if len(tree) == 0 {
			return artifact{}, fmt.Errorf("tree %d is empty", i)
		}
	}
	return a, nil
}

// peekModelType reads only the model_type field of an artifact.
func peekModelType(path string) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var head struct {
		ModelType string `json:"model_type"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "", fmt.Errorf("decode model %s: %w", path, err)
	}
	return head.ModelType, nil
}
