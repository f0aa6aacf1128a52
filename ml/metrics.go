package ml

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sjwhitworth/golearn/base"
	"github.com/sjwhitworth/golearn/evaluation"
)

type ClassMetrics struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport holds held-out accuracy plus per-class and averaged
// precision, recall and F1.
type ClassificationReport struct {
	Accuracy    float64        `json:"accuracy"`
	Classes     []ClassMetrics `json:"classes"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Samples     int            `json:"samples"`

	Confusion evaluation.ConfusionMatrix `json:"-"`
}

// Evaluate scores model on a held-out set using the given decision threshold.
func Evaluate(model MLModel, test *Dataset, threshold float64) (ClassificationReport, error) {
	if test == nil || test.Len() == 0 {
		return ClassificationReport{}, errors.New("test set is empty")
	}
	predicted := make([]int, test.Len())
	for i, row := range test.Features {
		p, err := model.PredictProba(row)
		if err != nil {
			return ClassificationReport{}, fmt.Errorf("row %d: %w", i, err)
		}
		predicted[i] = labelFor(p, threshold)
	}
	return NewClassificationReport(test.Labels, predicted)
}

// NewClassificationReport scores predicted against actual labels through a
// golearn confusion matrix.
func NewClassificationReport(actual, predicted []int) (ClassificationReport, error) {
	if len(actual) != len(predicted) {
		return ClassificationReport{}, errors.New("actual and predicted size mismatch")
	}
	if len(actual) == 0 {
		return ClassificationReport{}, errors.New("no samples")
	}

	reference, err := labelGrid(actual)
	if err != nil {
		return ClassificationReport{}, err
	}
	generated, err := labelGrid(predicted)
	if err != nil {
		return ClassificationReport{}, err
	}
	cm, err := evaluation.GetConfusionMatrix(reference, generated)
	if err != nil {
		return ClassificationReport{}, fmt.Errorf("confusion matrix: %w", err)
	}

	report := ClassificationReport{
		Accuracy:  evaluation.GetAccuracy(cm),
		Samples:   len(actual),
		Confusion: cm,
	}
	for _, label := range []int{0, 1} {
		class := strconv.Itoa(label)
		report.Classes = append(report.Classes, ClassMetrics{
			Label:     label,
			Precision: orZero(evaluation.GetPrecision(class, cm)),
			Recall:    orZero(evaluation.GetRecall(class, cm)),
			F1:        orZero(evaluation.GetF1Score(class, cm)),
			Support:   int(evaluation.GetTruePositives(class, cm) + evaluation.GetFalseNegatives(class, cm)),
		})
	}

	report.MacroAvg = ClassMetrics{Label: -1, Support: len(actual)}
	report.WeightedAvg = ClassMetrics{Label: -1, Support: len(actual)}
	for _, m := range report.Classes {
		n := float64(len(report.Classes))
		w := float64(m.Support) / float64(len(actual))
		report.MacroAvg.Precision += m.Precision / n
		report.MacroAvg.Recall += m.Recall / n
		report.MacroAvg.F1 += m.F1 / n
		report.WeightedAvg.Precision += m.Precision * w
		report.WeightedAvg.Recall += m.Recall * w
		report.WeightedAvg.F1 += m.F1 * w
	}
	return report, nil
}

// labelGrid wraps labels in a single-column golearn grid whose class
// attribute is the outcome.
func labelGrid(labels []int) (base.FixedDataGrid, error) {
	attr := base.NewCategoricalAttribute()
	attr.SetName(LabelColumn)
	attr.GetSysValFromString("0")
	attr.GetSysValFromString("1")

	grid := base.NewDenseInstances()
	spec := grid.AddAttribute(attr)
	if err := grid.AddClassAttribute(attr); err != nil {
		return nil, err
	}
	if err := grid.Extend(len(labels)); err != nil {
		return nil, err
	}
	for row, label := range labels {
		grid.Set(spec, row, attr.GetSysValFromString(strconv.Itoa(label)))
	}
	return grid, nil
}

// orZero maps the NaN golearn returns for an empty denominator to 0.
func orZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Positive returns the metrics of class 1.
func (r ClassificationReport) Positive() ClassMetrics {
	for _, m := range r.Classes {
		if m.Label == 1 {
			return m
		}
	}
	return ClassMetrics{Label: 1}
}

// String renders the report as a fixed-width table.
func (r ClassificationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %10s %10s %10s %10s\n", "", "precision", "recall", "f1-score", "support")
	for _, m := range r.Classes {
		fmt.Fprintf(&b, "%14d %10.2f %10.2f %10.2f %10d\n", m.Label, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "\n%14s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Samples)
	fmt.Fprintf(&b, "%14s %10.2f %10.2f %10.2f %10d\n", "macro avg", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(&b, "%14s %10.2f %10.2f %10.2f %10d\n", "weighted avg", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	return b.String()
}

func labelFor(probability, threshold float64) int {
	if probability > threshold {
		return 1
	}
	return 0
}
