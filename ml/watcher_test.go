package ml

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelWatcherSwapsRetrainedModel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_rf.json")
	payload, err := os.ReadFile("testdata/model_rf.json")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	cache, err := NewModelCache(2)
	require.NoError(t, err)
	model, err := cache.Get(ModelTypeRandomForest, path)
	require.NoError(t, err)
	predictor, err := NewPredictor(model, DefaultThreshold)
	require.NoError(t, err)

	watcher := NewModelWatcher(cache, ModelTypeRandomForest, path, predictor, nil)
	watcher.debounce = 20 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	retrained := NewRandomForest(ForestParams{NEstimators: 5, Seed: 3})
	ds := syntheticDataset(100, 8)
	require.NoError(t, retrained.Train(ds.Features, ds.Labels))
	require.NoError(t, retrained.Save(path))

	select {
	case <-watcher.Reloaded():
	case <-time.After(5 * time.Second):
		t.Fatal("model was not reloaded")
	}

	current, ok := predictor.Model().(*RandomForest)
	require.True(t, ok)
	assert.Equal(t, 5, current.Size())

	cached, err := cache.Get(ModelTypeRandomForest, path)
	require.NoError(t, err)
	assert.Same(t, predictor.Model(), cached)
	assert.Equal(t, 1, cache.Len())

	cancel()
	assert.NoError(t, <-done)
}

func TestModelWatcherKeepsModelOnBadArtifact(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_rf.json")
	payload, err := os.ReadFile("testdata/model_rf.json")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, payload, 0o644))

	cache, err := NewModelCache(2)
	require.NoError(t, err)
	model, err := cache.Get(ModelTypeRandomForest, path)
	require.NoError(t, err)
	predictor, err := NewPredictor(model, DefaultThreshold)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	watcher := NewModelWatcher(cache, ModelTypeRandomForest, path, predictor, nil)
	watcher.reload()

	assert.Same(t, model, predictor.Model())
	cached, err := cache.Get(ModelTypeRandomForest, path)
	require.NoError(t, err)
	assert.Same(t, model, cached)
	select {
	case <-watcher.Reloaded():
		t.Fatal("unexpected reload signal")
	default:
	}
}
