package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassificationReport(t *testing.T) {
	actual := []int{1, 1, 1, 1, 0, 0, 0, 0, 0, 0}
	predicted := []int{1, 1, 1, 0, 0, 0, 0, 0, 1, 1}

	report, err := NewClassificationReport(actual, predicted)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, report.Accuracy, 1e-9)

	positive := report.Positive()
	assert.InDelta(t, 0.6, positive.Precision, 1e-9)
	assert.InDelta(t, 0.75, positive.Recall, 1e-9)
	assert.InDelta(t, 2*0.6*0.75/1.35, positive.F1, 1e-9)
	assert.Equal(t, 4, positive.Support)

	negative := report.Classes[0]
	assert.InDelta(t, 0.8, negative.Precision, 1e-9)
	assert.InDelta(t, 4.0/6.0, negative.Recall, 1e-9)
	assert.Equal(t, 6, negative.Support)

	assert.InDelta(t, (0.6+0.8)/2, report.MacroAvg.Precision, 1e-9)
	assert.InDelta(t, 0.6*0.4+0.8*0.6, report.WeightedAvg.Precision, 1e-9)
	assert.Equal(t, 3, report.Confusion["1"]["1"])
	assert.Equal(t, 1, report.Confusion["1"]["0"])
	assert.Equal(t, 2, report.Confusion["0"]["1"])
	assert.Equal(t, 4, report.Confusion["0"]["0"])
	assert.Contains(t, report.String(), "accuracy")
	assert.Contains(t, report.String(), "weighted avg")
}

func TestClassificationReportNoPositivePredictions(t *testing.T) {
	report, err := NewClassificationReport([]int{1, 0}, []int{0, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, report.Positive().Precision)
	assert.Equal(t, 0.0, report.Positive().F1)
	assert.Equal(t, 0.0, report.Positive().Recall)
	assert.Equal(t, 1, report.Positive().Support)
	assert.InDelta(t, 0.5, report.Accuracy, 1e-9)
}

func TestClassificationReportErrors(t *testing.T) {
	_, err := NewClassificationReport([]int{1}, []int{1, 0})
	assert.Error(t, err)
	_, err = NewClassificationReport(nil, nil)
	assert.Error(t, err)
}
