package diagnosis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"diabetesdx/db"
	"diabetesdx/ml"
	"diabetesdx/monitoring"

	"go.uber.org/zap"
)

var ErrStoreDisabled = errors.New("no database configured")

// Scorer is satisfied by *ml.Predictor.
type Scorer interface {
	Predict(fv ml.FeatureVector) (ml.PredictionResult, error)
}

// Store is the part of *db.Gateway a session needs.
type Store interface {
	SaveDiagnosis(ctx context.Context, rec *db.DiagnosisRecord) error
	Stats(ctx context.Context) (db.Stats, error)
}

type Exporter interface {
	Export(ctx context.Context, patient db.Patient, fv ml.FeatureVector, result ml.PredictionResult) (string, error)
}

// StatsPublisher receives fresh counts after each stored diagnosis.
type StatsPublisher interface {
	Publish(stats db.Stats)
}

// Outcome is everything one submission produced. A prediction is always
// present; persistence and export failures are reported, not returned.
type Outcome struct {
	Result       ml.PredictionResult `json:"result"`
	Diagnosis    string              `json:"diagnosis"`
	RecordID     int64               `json:"record_id,omitempty"`
	DiagnosedAt  time.Time           `json:"diagnosed_at"`
	PersistError error               `json:"-"`
	ReportPath   string              `json:"report_path,omitempty"`
	ExportError  error               `json:"-"`
}

func (o Outcome) Saved() bool { return o.PersistError == nil && o.RecordID != 0 }

// Service runs predict, persist and export in that order.
type Service struct {
	scorer    Scorer
	store     Store
	exporter  Exporter
	publisher StatsPublisher
	metrics   *monitoring.MetricsCollector
	logger    *zap.Logger
	now       func() time.Time
}

// NewService wires a session. store and exporter may be nil: without a store
// nothing is persisted, and without an exporter no report is written.
func NewService(scorer Scorer, store Store, exporter Exporter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		scorer:   scorer,
		store:    store,
		exporter: exporter,
		logger:   logger.Named("diagnosis"),
		now:      time.Now,
	}
}

func (s *Service) WithPublisher(p StatsPublisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithMetrics(m *monitoring.MetricsCollector) *Service {
	s.metrics = m
	return s
}

func (s *Service) count(name string, labels map[string]string) {
	if s.metrics != nil {
		s.metrics.IncrCounter(name, labels)
	}
}

// Submit scores one patient. Validation and prediction errors are returned;
// the report is only written once the record is stored.
func (s *Service) Submit(ctx context.Context, sub Submission) (Outcome, error) {
	if err := ValidatePatient(sub.Patient); err != nil {
		return Outcome{}, err
	}
	result, err := s.scorer.Predict(sub.Features)
	if err != nil {
		return Outcome{}, fmt.Errorf("predict: %w", err)
	}

	out := Outcome{Result: result, Diagnosis: result.Describe(), DiagnosedAt: s.now().UTC()}
	s.count(monitoring.MetricDiagnoses, map[string]string{"label": strconv.Itoa(result.Label)})
	log := s.logger.With(zap.Int("label", result.Label), zap.Float64("probability", result.Probability))

	if s.store == nil {
		out.PersistError = ErrStoreDisabled
		log.Info("diagnosis not stored", zap.Error(out.PersistError))
		return out, nil
	}
	rec := db.DiagnosisRecord{
		Patient:     sub.Patient,
		Features:    sub.Features,
		Result:      result,
		DiagnosedAt: out.DiagnosedAt,
	}
	if err := s.store.SaveDiagnosis(ctx, &rec); err != nil {
		out.PersistError = err
		s.count(monitoring.MetricPersistFailures, nil)
		log.Error("diagnosis not stored", zap.Error(err))
		return out, nil
	}
	out.RecordID = rec.ID
	out.DiagnosedAt = rec.DiagnosedAt
	log.Info("diagnosis stored", zap.Int64("id", rec.ID))

	if s.exporter != nil {
		path, err := s.exporter.Export(ctx, sub.Patient, sub.Features, result)
		if err != nil {
			out.ExportError = err
			s.count(monitoring.MetricExportFailures, nil)
			log.Error("report export failed", zap.Error(err))
		} else {
			out.ReportPath = path
		}
	}

	s.publishStats(ctx)
	return out, nil
}

func (s *Service) publishStats(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn("stats refresh failed", zap.Error(err))
		return
	}
	s.publisher.Publish(stats)
}
