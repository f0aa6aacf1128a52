package ml

import (
	"errors"
	"fmt"
	"time"

	"github.com/sjwhitworth/golearn/evaluation"
	"go.uber.org/zap"
)

type TrainingConfig struct {
	DatasetPath string
	ModelType   string
	ModelPath   string
	TestRatio   float64
	Threshold   float64
	Params      ForestParams
}

type TrainingResult struct {
	ModelType string
	ModelPath string
	Report    ClassificationReport
	TrainSize int
	TestSize  int
	Depth     int
	Summary   []FeatureStats
	TrainedAt time.Time
	Duration  time.Duration
}

// Train loads the dataset, fits the configured model on a stratified split,
// evaluates it on the held-out part and writes the artifact to ModelPath.
func Train(config TrainingConfig, logger *zap.Logger) (*TrainingResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DatasetPath == "" {
		return nil, errors.New("dataset path is required")
	}
	if config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if config.ModelType == "" {
		config.ModelType = ModelTypeRandomForest
	}
	if config.TestRatio == 0 {
		config.TestRatio = 0.2
	}

	ds, err := LoadDatasetFile(config.DatasetPath)
	if err != nil {
		return nil, err
	}
	counts := ds.ClassCounts()
	if counts[0] == 0 || counts[1] == 0 {
		return nil, fmt.Errorf("dataset needs both outcomes, got %d negative and %d positive rows", counts[0], counts[1])
	}
	summary, err := Summarize(ds)
	if err != nil {
		return nil, err
	}
	logger.Info("dataset loaded",
		zap.String("path", config.DatasetPath),
		zap.Int("rows", ds.Len()),
		zap.Int("positive", counts[1]),
		zap.Int("negative", counts[0]))

	train, test, err := StratifiedSplit(ds, config.TestRatio, config.Params.Seed)
	if err != nil {
		return nil, err
	}

	model, err := NewModel(config.ModelType, config.Params)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := model.Train(train.Features, train.Labels); err != nil {
		return nil, fmt.Errorf("train %s: %w", config.ModelType, err)
	}
	elapsed := time.Since(start)
	depth := 0
	if d, ok := model.(interface{ Depth() int }); ok {
		depth = d.Depth()
	}

	report, err := Evaluate(model, test, config.Threshold)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	logger.Info("model evaluated",
		zap.String("model_type", config.ModelType),
		zap.Int("train_rows", train.Len()),
		zap.Int("test_rows", test.Len()),
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("precision", report.Positive().Precision),
		zap.Float64("recall", report.Positive().Recall),
		zap.Int("depth", depth),
		zap.Duration("elapsed", elapsed))
	if ce := logger.Check(zap.DebugLevel, "confusion matrix"); ce != nil {
		ce.Write(zap.String("summary", evaluation.GetSummary(report.Confusion)))
	}

	if err := model.Save(config.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	logger.Info("model saved", zap.String("path", config.ModelPath))

	return &TrainingResult{
		ModelType: config.ModelType,
		ModelPath: config.ModelPath,
		Report:    report,
		TrainSize: train.Len(),
		TestSize:  test.Len(),
		Depth:     depth,
		Summary:   summary,
		TrainedAt: time.Now().UTC(),
		Duration:  elapsed,
	}, nil
}
