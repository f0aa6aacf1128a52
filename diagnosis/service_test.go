package diagnosis

import (
	"context"
	"errors"
	"testing"
	"time"

	"diabetesdx/db"
	"diabetesdx/ml"
	"diabetesdx/monitoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	result ml.PredictionResult
	err    error
}

func (f fakeScorer) Predict(ml.FeatureVector) (ml.PredictionResult, error) { return f.result, f.err }

type fakeStore struct {
	saved   []db.DiagnosisRecord
	saveErr error
	stats   db.Stats
}

func (f *fakeStore) SaveDiagnosis(_ context.Context, rec *db.DiagnosisRecord) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	rec.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, *rec)
	f.stats.Total++
	if rec.Result.Label == 1 {
		f.stats.Positive++
	} else {
		f.stats.Negative++
	}
	return nil
}

func (f *fakeStore) Stats(context.Context) (db.Stats, error) { return f.stats, nil }

type fakeExporter struct {
	calls int
	err   error
}

func (f *fakeExporter) Export(_ context.Context, p db.Patient, _ ml.FeatureVector, _ ml.PredictionResult) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "reportes/reporte_" + p.Name + ".xlsx", nil
}

type fakePublisher struct{ published []db.Stats }

func (f *fakePublisher) Publish(s db.Stats) { f.published = append(f.published, s) }

func validSubmission() Submission {
	sub := DefaultSubmission()
	sub.Patient.Name = "Ana"
	return sub
}

func TestSubmitStoresThenExports(t *testing.T) {
	store := &fakeStore{}
	exporter := &fakeExporter{}
	publisher := &fakePublisher{}
	svc := NewService(fakeScorer{result: ml.PredictionResult{Label: 1, Probability: 0.81}}, store, exporter, nil).
		WithPublisher(publisher)
	svc.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	out, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)

	assert.True(t, out.Saved())
	assert.Equal(t, int64(1), out.RecordID)
	assert.Equal(t, "Positivo (riesgo)", out.Diagnosis)
	assert.Equal(t, "reportes/reporte_Ana.xlsx", out.ReportPath)
	assert.NoError(t, out.ExportError)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "Ana", store.saved[0].Patient.Name)
	assert.Equal(t, 0.81, store.saved[0].Result.Probability)
	assert.Equal(t, []db.Stats{{Total: 1, Positive: 1}}, publisher.published)
}

func TestSubmitPersistFailureSkipsExport(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("dial tcp: connection refused")}
	exporter := &fakeExporter{}
	metrics := monitoring.NewMetricsCollector()
	svc := NewService(fakeScorer{result: ml.PredictionResult{Label: 0, Probability: 0.2}}, store, exporter, nil).
		WithMetrics(metrics)

	out, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.False(t, out.Saved())
	assert.EqualError(t, out.PersistError, "dial tcp: connection refused")
	assert.Equal(t, "Negativo (bajo riesgo)", out.Diagnosis)
	assert.Zero(t, exporter.calls)
	assert.Empty(t, out.ReportPath)
	assert.Equal(t, 1.0, metrics.Value(monitoring.MetricPersistFailures, nil))
	assert.Equal(t, 1.0, metrics.Value(monitoring.MetricDiagnoses, map[string]string{"label": "0"}))
}

func TestSubmitWithoutStore(t *testing.T) {
	exporter := &fakeExporter{}
	svc := NewService(fakeScorer{result: ml.PredictionResult{Label: 1, Probability: 0.6}}, nil, exporter, nil)
	out, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.True(t, errors.Is(out.PersistError, ErrStoreDisabled))
	assert.Zero(t, exporter.calls)
}

func TestSubmitExportFailureKeepsRecord(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(fakeScorer{result: ml.PredictionResult{Label: 1, Probability: 0.6}}, store,
		&fakeExporter{err: errors.New("disk full")}, nil)
	out, err := svc.Submit(context.Background(), validSubmission())
	require.NoError(t, err)
	assert.True(t, out.Saved())
	assert.Error(t, out.ExportError)
	assert.Len(t, store.saved, 1)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(fakeScorer{err: ml.ErrInvalidFeature}, store, nil, nil)

	_, err := svc.Submit(context.Background(), validSubmission())
	assert.True(t, errors.Is(err, ml.ErrInvalidFeature))

	sub := validSubmission()
	sub.Patient.Age = 121
	_, err = svc.Submit(context.Background(), sub)
	assert.True(t, errors.Is(err, ErrInvalidPatient))
	assert.Empty(t, store.saved)
}

func TestSubmitWithRealPredictor(t *testing.T) {
	model, err := ml.LoadModel("", "../ml/testdata/model_rf.json")
	require.NoError(t, err)
	predictor, err := ml.NewPredictor(model, ml.DefaultThreshold)
	require.NoError(t, err)

	sub := validSubmission()
	sub.Features = ml.FeatureVector{
		Pregnancies: 6, Glucose: 148, BloodPressure: 72, SkinThickness: 35,
		BMI: 33.6, DiabetesPedigreeFunction: 0.627, Age: 50,
	}
	out, err := NewService(predictor, &fakeStore{}, nil, nil).Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Result.Label)
	assert.GreaterOrEqual(t, out.Result.Probability, 0.0)
	assert.LessOrEqual(t, out.Result.Probability, 1.0)
}
