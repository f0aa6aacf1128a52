package db

import (
	"errors"
	"time"

	"diabetesdx/ml"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// Patient identifies who a diagnosis belongs to.
type Patient struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
}

// DiagnosisRecord is one row of the paciente table.
type DiagnosisRecord struct {
	ID          int64               `json:"id"`
	Patient     Patient             `json:"patient"`
	Features    ml.FeatureVector    `json:"features"`
	Result      ml.PredictionResult `json:"result"`
	DiagnosedAt time.Time           `json:"diagnosed_at"`
}

// Stats aggregates stored diagnoses by label.
type Stats struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1         float64   `json:"f1"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}
