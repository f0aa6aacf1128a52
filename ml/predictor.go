package ml

import (
	"errors"
	"fmt"
	"sync/atomic"
)

const DefaultThreshold = 0.5

// Predictor scores one FeatureVector at a time. The model it holds is never
// mutated; Swap replaces it wholesale after retraining.
type Predictor struct {
	model     atomic.Pointer[loadedModel]
	threshold float64
}

type loadedModel struct {
	MLModel
}

// NewPredictor labels a vector positive when its class 1 probability is
// strictly greater than threshold.
func NewPredictor(model MLModel, threshold float64) (*Predictor, error) {
	if model == nil {
		return nil, ErrModelNotTrained
	}
	if threshold < 0 || threshold >= 1 {
		return nil, fmt.Errorf("threshold %.3f out of range [0,1)", threshold)
	}
	p := &Predictor{threshold: threshold}
	p.model.Store(&loadedModel{model})
	return p, nil
}

func (p *Predictor) Threshold() float64 {
	return p.threshold
}

func (p *Predictor) Model() MLModel {
	return p.model.Load().MLModel
}

// Swap installs a newly loaded model for subsequent predictions.
func (p *Predictor) Swap(model MLModel) error {
	if model == nil {
		return errors.New("cannot swap in a nil model")
	}
	p.model.Store(&loadedModel{model})
	return nil
}

func (p *Predictor) Predict(fv FeatureVector) (PredictionResult, error) {
	if err := fv.Validate(); err != nil {
		return PredictionResult{}, err
	}
	probability, err := p.Model().PredictProba(fv.Values())
	if err != nil {
		return PredictionResult{}, fmt.Errorf("predict: %w", err)
	}
	if probability < 0 {
		probability = 0
	} else if probability > 1 {
		probability = 1
	}
	return PredictionResult{
		Label:       labelFor(probability, p.threshold),
		Probability: probability,
	}, nil
}
