package report

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"diabetesdx/db"
	"diabetesdx/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubStats struct {
	stats db.Stats
	err   error
}

func (s stubStats) Stats(context.Context) (db.Stats, error) { return s.stats, s.err }

type recordingUploader struct {
	paths []string
	err   error
}

func (u *recordingUploader) Upload(_ context.Context, path string) (string, error) {
	u.paths = append(u.paths, path)
	return "s3://reports/" + filepath.Base(path), u.err
}

var (
	fixedNow = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	patient  = db.Patient{Name: "María José Pérez", Age: 50, Gender: "Femenino"}
	features = ml.FeatureVector{
		Pregnancies: 6, Glucose: 148, BloodPressure: 72, SkinThickness: 35,
		BMI: 33.6, DiabetesPedigreeFunction: 0.627, Age: 50,
	}
)

func newTestExporter(t *testing.T, stats StatsSource) *Exporter {
	t.Helper()
	e := NewExporter(Config{Dir: filepath.Join(t.TempDir(), "reportes")}, stats, nil)
	e.now = func() time.Time { return fixedNow }
	return e
}

func cell(t *testing.T, f *excelize.File, sheet, ref string) string {
	t.Helper()
	v, err := f.GetCellValue(sheet, ref)
	require.NoError(t, err)
	return v
}

func TestExportWritesBothSheets(t *testing.T) {
	e := newTestExporter(t, stubStats{stats: db.Stats{Total: 12, Positive: 5, Negative: 7}})

	path, err := e.Export(context.Background(), patient, features, ml.PredictionResult{Label: 1, Probability: 0.76666})
	require.NoError(t, err)
	assert.Equal(t, "reporte_Maria_Jose_Perez_2025-03-14.xlsx", filepath.Base(path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ReportSheet, StatsSheet}, f.GetSheetList())

	assert.Equal(t, reportTitle, cell(t, f, ReportSheet, "A1"))
	merged, err := f.GetMergeCells(ReportSheet)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "A1", merged[0].GetStartAxis())
	assert.Equal(t, "H1", merged[0].GetEndAxis())

	assert.Equal(t, "Nombre", cell(t, f, ReportSheet, "A3"))
	assert.Equal(t, "Fecha diagnóstico", cell(t, f, ReportSheet, "N3"))
	assert.Equal(t, "María José Pérez", cell(t, f, ReportSheet, "A4"))
	assert.Equal(t, "148", cell(t, f, ReportSheet, "E4"))
	assert.Equal(t, "Positivo (riesgo)", cell(t, f, ReportSheet, "L4"))
	assert.Equal(t, "0.77", cell(t, f, ReportSheet, "M4"))
	assert.Equal(t, "14-03-2025", cell(t, f, ReportSheet, "N4"))

	assert.Equal(t, statsTitle, cell(t, f, StatsSheet, "A1"))
	assert.Equal(t, "Positivos (riesgo)", cell(t, f, StatsSheet, "B2"))
	assert.Equal(t, "12", cell(t, f, StatsSheet, "A3"))
	assert.Equal(t, "5", cell(t, f, StatsSheet, "B3"))
	assert.Equal(t, "7", cell(t, f, StatsSheet, "C3"))
}

func TestExportZeroCountsOnEmptyStore(t *testing.T) {
	e := newTestExporter(t, stubStats{})
	path, err := e.Export(context.Background(), patient, features, ml.PredictionResult{})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	for _, ref := range []string{"A3", "B3", "C3"} {
		assert.Equal(t, "0", cell(t, f, StatsSheet, ref))
	}
	assert.Equal(t, "Negativo (bajo riesgo)", cell(t, f, ReportSheet, "L4"))
}

func TestExportSurvivesStatsFailure(t *testing.T) {
	e := newTestExporter(t, stubStats{err: errors.New("connection refused")})
	path, err := e.Export(context.Background(), patient, features, ml.PredictionResult{Label: 1, Probability: 0.9})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "0", cell(t, f, StatsSheet, "A3"))
}

func TestExportEmbedsLogo(t *testing.T) {
	logo := filepath.Join(t.TempDir(), "logo.png")
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	out, err := os.Create(logo)
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, img))
	require.NoError(t, out.Close())

	e := newTestExporter(t, stubStats{})
	e.logoPath = logo
	path, err := e.Export(context.Background(), patient, features, ml.PredictionResult{})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	pics, err := f.GetPictures(ReportSheet, "A6")
	require.NoError(t, err)
	assert.Len(t, pics, 1)

	// a missing logo is not an error
	e.logoPath = filepath.Join(t.TempDir(), "nope.png")
	_, err = e.Export(context.Background(), patient, features, ml.PredictionResult{})
	assert.NoError(t, err)
}

func TestExportUploads(t *testing.T) {
	up := &recordingUploader{}
	e := newTestExporter(t, stubStats{}).WithUploader(up)
	path, err := e.Export(context.Background(), patient, features, ml.PredictionResult{})
	require.NoError(t, err)
	assert.Equal(t, []string{path}, up.paths)

	up.err = errors.New("bucket gone")
	_, err = e.Export(context.Background(), patient, features, ml.PredictionResult{})
	assert.NoError(t, err)
}

func TestExporterPath(t *testing.T) {
	e := newTestExporter(t, nil)
	p, err := e.Path("reporte_Ana_2025-03-14.xlsx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.Dir(), "reporte_Ana_2025-03-14.xlsx"), p)

	for _, bad := range []string{"", "../secret.xlsx", "a/b.xlsx", "report.csv"} {
		_, err := e.Path(bad)
		assert.Error(t, err, bad)
	}
}
