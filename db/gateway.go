package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Gateway is the persistence boundary for diagnoses and training runs.
// Every call opens its own connection and closes it before returning.
type Gateway struct {
	driver string
	dsn    string
	logger *zap.Logger
}

func NewGateway(driver, dsn string, logger *zap.Logger) (*Gateway, error) {
	name, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("database dsn is empty")
	}
	dsn, err = prepareDSN(name, dsn)
	if err != nil {
		return nil, err
	}
	if name == DriverSQLite {
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{driver: name, dsn: dsn, logger: logger.Named("db")}, nil
}

func (g *Gateway) Driver() string { return g.driver }

func (g *Gateway) open(ctx context.Context) (*sql.DB, error) {
	conn, err := sql.Open(g.driver, g.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", g.driver, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect %s: %w", g.driver, err)
	}
	return conn, nil
}

func (g *Gateway) withConn(ctx context.Context, fn func(*sql.DB) error) error {
	conn, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// Ping reports whether the store is reachable.
func (g *Gateway) Ping(ctx context.Context) error {
	return g.withConn(ctx, func(*sql.DB) error { return nil })
}

const diagnosisColumns = `nombre_paciente, edad, genero, pregnancies, glucose, bloodpressure,
	skinthickness, insulin, bmi, dpf, age, resultado_diagnostico, probabilidad, fecha_diagnostico`

// SaveDiagnosis inserts rec and sets rec.ID and rec.DiagnosedAt from what was
// stored. A zero DiagnosedAt means now.
func (g *Gateway) SaveDiagnosis(ctx context.Context, rec *DiagnosisRecord) error {
	if rec == nil {
		return errors.New("nil diagnosis record")
	}
	if rec.Result.Label != 0 && rec.Result.Label != 1 {
		return fmt.Errorf("diagnosis label %d is not 0 or 1", rec.Result.Label)
	}
	at := rec.DiagnosedAt
	if at.IsZero() {
		at = time.Now()
	}
	// mysql and postgres keep microseconds
	at = at.UTC().Truncate(time.Microsecond)

	fv := rec.Features
	args := []any{
		rec.Patient.Name, rec.Patient.Age, rec.Patient.Gender,
		fv.Pregnancies, fv.Glucose, fv.BloodPressure, fv.SkinThickness,
		fv.Insulin, fv.BMI, fv.DiabetesPedigreeFunction, fv.Age,
		rec.Result.Label, rec.Result.Probability, at,
	}
	query := rebind(g.driver, `INSERT INTO paciente (`+diagnosisColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	var id int64
	err := g.withConn(ctx, func(conn *sql.DB) error {
		if g.driver == DriverPostgres {
			return conn.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id)
		}
		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return fmt.Errorf("save diagnosis: %w", err)
	}

	rec.ID = id
	rec.DiagnosedAt = at
	g.logger.Debug("diagnosis stored",
		zap.Int64("id", id),
		zap.Int("label", rec.Result.Label),
		zap.Float64("probability", rec.Result.Probability))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDiagnosis(row rowScanner) (DiagnosisRecord, error) {
	var rec DiagnosisRecord
	fv := &rec.Features
	err := row.Scan(&rec.ID,
		&rec.Patient.Name, &rec.Patient.Age, &rec.Patient.Gender,
		&fv.Pregnancies, &fv.Glucose, &fv.BloodPressure, &fv.SkinThickness,
		&fv.Insulin, &fv.BMI, &fv.DiabetesPedigreeFunction, &fv.Age,
		&rec.Result.Label, &rec.Result.Probability, &rec.DiagnosedAt)
	rec.DiagnosedAt = rec.DiagnosedAt.UTC()
	return rec, err
}

func (g *Gateway) GetDiagnosis(ctx context.Context, id int64) (DiagnosisRecord, error) {
	var rec DiagnosisRecord
	err := g.withConn(ctx, func(conn *sql.DB) error {
		row := conn.QueryRowContext(ctx,
			rebind(g.driver, `SELECT id, `+diagnosisColumns+` FROM paciente WHERE id = ?`), id)
		var err error
		rec, err = scanDiagnosis(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return DiagnosisRecord{}, fmt.Errorf("diagnosis %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return DiagnosisRecord{}, fmt.Errorf("get diagnosis %d: %w", id, err)
	}
	return rec, nil
}

// ListDiagnoses returns the newest records first. limit <= 0 means 50.
func (g *Gateway) ListDiagnoses(ctx context.Context, limit int) ([]DiagnosisRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	records := make([]DiagnosisRecord, 0)
	err := g.withConn(ctx, func(conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx,
			rebind(g.driver, `SELECT id, `+diagnosisColumns+` FROM paciente ORDER BY id DESC LIMIT ?`), limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanDiagnosis(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list diagnoses: %w", err)
	}
	return records, nil
}

// Stats counts stored diagnoses grouped by label.
func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := g.withConn(ctx, func(conn *sql.DB) error {
		return conn.QueryRowContext(ctx, `
			SELECT COUNT(*),
				COALESCE(SUM(CASE WHEN resultado_diagnostico = 1 THEN 1 ELSE 0 END), 0)
			FROM paciente`).Scan(&s.Total, &s.Positive)
	})
	if err != nil {
		return Stats{}, fmt.Errorf("diagnosis stats: %w", err)
	}
	s.Negative = s.Total - s.Positive
	return s, nil
}

func (g *Gateway) SaveTrainingLog(ctx context.Context, entry TrainingLog) error {
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now()
	}
	query := rebind(g.driver, fmt.Sprintf(`
		INSERT INTO training_log (model_name, accuracy, %s, recall, f1, trained_at, data_points)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, quoteIdent(g.driver, "precision")))
	err := g.withConn(ctx, func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, query,
			entry.ModelName, entry.Accuracy, entry.Precision, entry.Recall, entry.F1,
			entry.TrainedAt.UTC().Truncate(time.Microsecond), entry.DataPoints)
		return err
	})
	if err != nil {
		return fmt.Errorf("save training log: %w", err)
	}
	return nil
}

// LoadTrainingLog returns training runs newest first.
func (g *Gateway) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	logs := make([]TrainingLog, 0)
	query := fmt.Sprintf(`
		SELECT model_name, accuracy, %s, recall, f1, trained_at, data_points
		FROM training_log
		ORDER BY trained_at DESC, id DESC`, quoteIdent(g.driver, "precision"))
	err := g.withConn(ctx, func(conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var log TrainingLog
			if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall,
				&log.F1, &log.TrainedAt, &log.DataPoints); err != nil {
				return err
			}
			log.TrainedAt = log.TrainedAt.UTC()
			logs = append(logs, log)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("load training log: %w", err)
	}
	return logs, nil
}

func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}
	return nil
}
