package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"diabetesdx/db"
	"diabetesdx/diagnosis"
	"diabetesdx/ml"
	"diabetesdx/monitoring"
	"diabetesdx/report"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Records is the read side of the store.
type Records interface {
	GetDiagnosis(ctx context.Context, id int64) (db.DiagnosisRecord, error)
	ListDiagnoses(ctx context.Context, limit int) ([]db.DiagnosisRecord, error)
	Stats(ctx context.Context) (db.Stats, error)
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
	Ping(ctx context.Context) error
}

// Handlers holds everything the routes need. Records is nil when no
// database is configured.
type Handlers struct {
	Service   *diagnosis.Service
	Records   Records
	Reports   *report.Exporter
	Predictor *ml.Predictor
	Hub       http.Handler
	Metrics   *monitoring.MetricsCollector
	Logger    *zap.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func badRequest(err error) error {
	return &statusError{status: http.StatusBadRequest, err: err}
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (h *Handlers) wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("request failed",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err))
		}
		writeJSON(w, status, errorBody{Error: err.Error()})
	}
}

func statusFor(err error) int {
	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.status
	case errors.Is(err, diagnosis.ErrInvalidPatient), errors.Is(err, ml.ErrInvalidFeature):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, diagnosis.ErrStoreDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) records() (Records, error) {
	if h.Records == nil {
		return nil, diagnosis.ErrStoreDisabled
	}
	return h.Records, nil
}

type outcomeResponse struct {
	diagnosis.Outcome
	ReportName   string `json:"report_name,omitempty"`
	PersistError string `json:"persist_error,omitempty"`
	ExportError  string `json:"export_error,omitempty"`
}

func newOutcomeResponse(out diagnosis.Outcome) outcomeResponse {
	resp := outcomeResponse{Outcome: out}
	if out.ReportPath != "" {
		resp.ReportName = filepath.Base(out.ReportPath)
	}
	if out.PersistError != nil {
		resp.PersistError = out.PersistError.Error()
	}
	if out.ExportError != nil {
		resp.ExportError = out.ExportError.Error()
	}
	return resp
}

// POST /api/diagnoses
func (h *Handlers) handleCreateDiagnosis(w http.ResponseWriter, r *http.Request) error {
	var sub diagnosis.Submission
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sub); err != nil {
		return badRequest(fmt.Errorf("decode body: %w", err))
	}

	out, err := h.Service.Submit(r.Context(), sub)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if out.Saved() {
		status = http.StatusCreated
	}
	writeJSON(w, status, newOutcomeResponse(out))
	return nil
}

// GET /api/diagnoses?limit=50
func (h *Handlers) handleListDiagnoses(w http.ResponseWriter, r *http.Request) error {
	store, err := h.records()
	if err != nil {
		return err
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest(fmt.Errorf("limit %q is not a positive number", raw))
		}
	}
	list, err := store.ListDiagnoses(r.Context(), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /api/diagnoses/{id}
func (h *Handlers) handleGetDiagnosis(w http.ResponseWriter, r *http.Request) error {
	store, err := h.records()
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return badRequest(fmt.Errorf("invalid id %q", chi.URLParam(r, "id")))
	}
	rec, err := store.GetDiagnosis(r.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// GET /api/stats
func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) error {
	store, err := h.records()
	if err != nil {
		return err
	}
	stats, err := store.Stats(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, stats)
	return nil
}

// GET /api/reports/{name}
func (h *Handlers) handleReport(w http.ResponseWriter, r *http.Request) error {
	if h.Reports == nil {
		return &statusError{status: http.StatusNotFound, err: errors.New("reports are disabled")}
	}
	name := chi.URLParam(r, "name")
	path, err := h.Reports.Path(name)
	if err != nil {
		return badRequest(err)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("report %s: %w", name, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
	return nil
}

// GET /api/health
func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) error {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}

	if h.Predictor != nil {
		body["model"] = h.Predictor.Model().Name()
		body["threshold"] = h.Predictor.Threshold()
	}
	switch {
	case h.Records == nil:
		body["database"] = "disabled"
	default:
		if err := h.Records.Ping(r.Context()); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = err.Error()
		} else {
			body["database"] = "ok"
		}
	}
	if h.Metrics != nil {
		body["system"] = h.Metrics.GetSystemStats()
	}
	writeJSON(w, status, body)
	return nil
}

// GET /metrics
func (h *Handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if h.Metrics == nil {
		return
	}
	w.Write([]byte(h.Metrics.ExportPrometheus()))
}
