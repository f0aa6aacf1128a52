package http

import (
	"net/http"

	"diabetesdx/db"
	"diabetesdx/ml"
)

type trainingResponse struct {
	Model     string           `json:"model,omitempty"`
	Trees     int              `json:"trees,omitempty"`
	Threshold float64          `json:"threshold"`
	Features  []string         `json:"features"`
	Runs      []db.TrainingLog `json:"runs"`
}

// GET /api/training
func (h *Handlers) handleTraining(w http.ResponseWriter, r *http.Request) error {
	resp := trainingResponse{Features: ml.FeatureNames(), Runs: []db.TrainingLog{}}
	if h.Predictor != nil {
		model := h.Predictor.Model()
		resp.Model = model.Name()
		resp.Threshold = h.Predictor.Threshold()
		if rf, ok := model.(*ml.RandomForest); ok {
			resp.Trees = rf.Size()
		}
	}
	if h.Records != nil {
		runs, err := h.Records.LoadTrainingLog(r.Context())
		if err != nil {
			return err
		}
		resp.Runs = runs
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}
