package ml

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ModelWatcher reloads the artifact through a ModelCache when retraining
// replaces it and swaps the fresh model into a Predictor. A failed reload
// keeps the current model.
type ModelWatcher struct {
	cache     *ModelCache
	path      string
	modelType string
	predictor *Predictor
	logger    *zap.Logger
	debounce  time.Duration
	reloaded  chan struct{}
}

func NewModelWatcher(cache *ModelCache, modelType, path string, predictor *Predictor, logger *zap.Logger) *ModelWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ModelWatcher{
		cache:     cache,
		path:      filepath.Clean(path),
		modelType: modelType,
		predictor: predictor,
		logger:    logger,
		debounce:  250 * time.Millisecond,
		reloaded:  make(chan struct{}, 1),
	}
}

// Reloaded fires after every successful swap.
func (w *ModelWatcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

// Run blocks until ctx is cancelled. The parent directory is watched because
// artifacts are replaced by rename.
func (w *ModelWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("model watcher error", zap.Error(err))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *ModelWatcher) reload() {
	model, err := w.cache.Reload(w.modelType, w.path)
	if err != nil {
		w.logger.Warn("model reload failed, keeping current model", zap.String("path", w.path), zap.Error(err))
		return
	}
	if err := w.predictor.Swap(model); err != nil {
		w.logger.Warn("model swap failed", zap.Error(err))
		return
	}
	w.logger.Info("model reloaded", zap.String("path", w.path), zap.String("model_type", model.Name()))
	select {
	case w.reloaded <- struct{}{}:
	default:
	}
}
