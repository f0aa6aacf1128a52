package report

import (
	"context"
	"errors"
	"fmt"
	_ "image/png"
	"math"
	"os"
	"path/filepath"
	"time"

	"diabetesdx/db"
	"diabetesdx/ml"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	ReportSheet = "Informe Médico"
	StatsSheet  = "Estadísticas"

	reportTitle = "INFORME MÉDICO - DIAGNÓSTICO DIABETES TIPO 2"
	statsTitle  = "📊 Estadísticas Globales"
)

var reportHeaders = []string{
	"Nombre", "Edad", "Género",
	"Pregnancies", "Glucose", "BloodPressure", "SkinThickness",
	"Insulin", "BMI", "DiabetesPedigreeFunction", "Age (modelo)",
	"Resultado", "Probabilidad", "Fecha diagnóstico",
}

var statsHeaders = []string{"Total Pacientes", "Positivos (riesgo)", "Negativos (bajo riesgo)"}

// StatsSource supplies the global counts rendered on the statistics sheet.
type StatsSource interface {
	Stats(ctx context.Context) (db.Stats, error)
}

type Config struct {
	Dir      string `yaml:"dir"`
	LogoPath string `yaml:"logo_path"`
}

// Exporter renders one spreadsheet per diagnosis.
type Exporter struct {
	dir      string
	logoPath string
	stats    StatsSource
	uploader Uploader
	logger   *zap.Logger
	now      func() time.Time
}

func NewExporter(cfg Config, stats StatsSource, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := cfg.Dir
	if dir == "" {
		dir = "reportes"
	}
	return &Exporter{
		dir:      dir,
		logoPath: cfg.LogoPath,
		stats:    stats,
		logger:   logger.Named("report"),
		now:      time.Now,
	}
}

// WithUploader makes every successful export also go through u.
// Upload failures are logged and never fail the export.
func (e *Exporter) WithUploader(u Uploader) *Exporter {
	e.uploader = u
	return e
}

func (e *Exporter) Dir() string { return e.dir }

// Path resolves a report file name inside the output directory, refusing
// anything that would escape it.
func (e *Exporter) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || filepath.Ext(name) != ".xlsx" {
		return "", fmt.Errorf("invalid report name %q", name)
	}
	return filepath.Join(e.dir, name), nil
}

// Export writes the report for one patient and returns the file path.
func (e *Exporter) Export(ctx context.Context, patient db.Patient, fv ml.FeatureVector, result ml.PredictionResult) (string, error) {
	at := e.now()
	stats := e.currentStats(ctx)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}
	if err := e.writeReportSheet(f, patient, fv, result, at); err != nil {
		return "", fmt.Errorf("report sheet: %w", err)
	}
	if _, err := f.NewSheet(StatsSheet); err != nil {
		return "", fmt.Errorf("stats sheet: %w", err)
	}
	if err := writeStatsSheet(f, stats); err != nil {
		return "", fmt.Errorf("stats sheet: %w", err)
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(e.dir, FileName(patient.Name, at))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	e.logger.Info("report exported", zap.String("path", path), zap.Int("total", stats.Total))

	if e.uploader != nil {
		location, err := e.uploader.Upload(ctx, path)
		if err != nil {
			e.logger.Warn("report upload failed", zap.String("path", path), zap.Error(err))
		} else {
			e.logger.Info("report uploaded", zap.String("location", location))
		}
	}
	return path, nil
}

func (e *Exporter) currentStats(ctx context.Context) db.Stats {
	if e.stats == nil {
		return db.Stats{}
	}
	stats, err := e.stats.Stats(ctx)
	if err != nil {
		e.logger.Warn("stats unavailable, exporting zero counts", zap.Error(err))
		return db.Stats{}
	}
	return stats
}

func (e *Exporter) writeReportSheet(f *excelize.File, p db.Patient, fv ml.FeatureVector, result ml.PredictionResult, at time.Time) error {
	sheet := ReportSheet
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"9BBB59"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", WrapText: true},
		Border:    thinBorder(),
	})
	if err != nil {
		return err
	}
	cellStyle, err := f.NewStyle(&excelize.Style{Border: thinBorder()})
	if err != nil {
		return err
	}

	if err := f.MergeCell(sheet, "A1", "H1"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "A1", reportTitle); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "H1", titleStyle); err != nil {
		return err
	}

	values := []any{
		p.Name, p.Age, p.Gender,
		fv.Pregnancies, fv.Glucose, fv.BloodPressure, fv.SkinThickness,
		fv.Insulin, fv.BMI, fv.DiabetesPedigreeFunction, fv.Age,
		result.Describe(), round2(result.Probability), at.Format("02-01-2006"),
	}
	if err := writeRow(f, sheet, 3, reportHeaders, headerStyle); err != nil {
		return err
	}
	if err := writeRow(f, sheet, 4, values, cellStyle); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(reportHeaders))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", last, 18); err != nil {
		return err
	}

	return e.addLogo(f, sheet)
}

func (e *Exporter) addLogo(f *excelize.File, sheet string) error {
	if e.logoPath == "" {
		return nil
	}
	if _, err := os.Stat(e.logoPath); errors.Is(err, os.ErrNotExist) {
		e.logger.Debug("logo not found, skipping", zap.String("path", e.logoPath))
		return nil
	}
	return f.AddPicture(sheet, "A6", e.logoPath, &excelize.GraphicOptions{ScaleX: 0.4, ScaleY: 0.4})
}

func writeStatsSheet(f *excelize.File, stats db.Stats) error {
	sheet := StatsSheet
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"FFD966"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Border: thinBorder(),
	})
	if err != nil {
		return err
	}

	if err := f.SetCellValue(sheet, "A1", statsTitle); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "A1", titleStyle); err != nil {
		return err
	}
	if err := writeRow(f, sheet, 2, statsHeaders, headerStyle); err != nil {
		return err
	}
	if err := writeRow(f, sheet, 3, []any{stats.Total, stats.Positive, stats.Negative}, 0); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "C", 25); err != nil {
		return err
	}

	ref := "'" + sheet + "'!"
	return f.AddChart(sheet, "A5", &excelize.Chart{
		Type: excelize.Col,
		Series: []excelize.ChartSeries{{
			Categories: ref + "$B$2:$C$2",
			Values:     ref + "$B$3:$C$3",
		}},
		Title:  []excelize.RichTextRun{{Text: "Distribución de Diagnósticos"}},
		XAxis:  excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Tipo de Resultado"}}},
		YAxis:  excelize.ChartAxis{Title: []excelize.RichTextRun{{Text: "Cantidad de Pacientes"}}},
		Legend: excelize.ChartLegend{Position: "none"},
		Format: excelize.GraphicOptions{ScaleX: 1.2, ScaleY: 1.2},
	})
}

func writeRow[T any](f *excelize.File, sheet string, row int, values []T, style int) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if style != 0 {
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return err
			}
		}
	}
	return nil
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
