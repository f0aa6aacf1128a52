package ml

import (
	"fmt"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LoadModel reads an artifact from disk. An empty modelType accepts whatever
// type the file declares.
func LoadModel(modelType, path string) (MLModel, error) {
	if modelType == "" {
		declared, err := peekModelType(path)
		if err != nil {
			return nil, err
		}
		modelType = declared
	}
	model, err := NewModel(modelType, ForestParams{})
	if err != nil {
		return nil, err
	}
	if err := model.Load(path); err != nil {
		return nil, fmt.Errorf("load %s model from %s: %w", modelType, path, err)
	}
	return model, nil
}

// ModelCache keeps loaded models keyed by absolute artifact path so a process
// deserializes each artifact once.
type ModelCache struct {
	mu     sync.Mutex
	models *lru.Cache[string, MLModel]
	load   func(modelType, path string) (MLModel, error)
}

func NewModelCache(size int) (*ModelCache, error) {
	if size <= 0 {
		size = 4
	}
	models, err := lru.New[string, MLModel](size)
	if err != nil {
		return nil, err
	}
	return &ModelCache{models: models, load: LoadModel}, nil
}

func (c *ModelCache) Get(modelType, path string) (MLModel, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if model, ok := c.models.Get(key); ok {
		return model, nil
	}
	model, err := c.load(modelType, key)
	if err != nil {
		return nil, err
	}
	c.models.Add(key, model)
	return model, nil
}

// Reload reads the artifact again and replaces the cached entry. On failure
// the previously cached model stays in place.
func (c *ModelCache) Reload(modelType, path string) (MLModel, error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	model, err := c.load(modelType, key)
	if err != nil {
		return nil, err
	}
	c.models.Add(key, model)
	return model, nil
}

func (c *ModelCache) Len() int {
	return c.models.Len()
}
