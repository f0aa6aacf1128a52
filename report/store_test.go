package report

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"diabetesdx/db"
	"diabetesdx/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newSQLiteStore(t *testing.T) *db.Gateway {
	t.Helper()
	g, err := db.NewGateway(db.DriverSQLite, filepath.Join(t.TempDir(), "diabetes.db"), nil)
	require.NoError(t, err)
	require.NoError(t, g.Migrate(context.Background()))
	return g
}

func exportedCounts(t *testing.T, path string) db.Stats {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	atoi := func(ref string) int {
		n, err := strconv.Atoi(cell(t, f, StatsSheet, ref))
		require.NoError(t, err)
		return n
	}
	return db.Stats{Total: atoi("A3"), Positive: atoi("B3"), Negative: atoi("C3")}
}

func TestExportCountsMatchStore(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	for i, label := range []int{1, 0, 1, 0, 0} {
		rec := db.DiagnosisRecord{
			Patient:  db.Patient{Name: "Paciente " + strconv.Itoa(i), Age: 40 + i, Gender: "Otro"},
			Features: features,
			Result:   ml.PredictionResult{Label: label, Probability: 0.25 + 0.5*float64(label)},
		}
		require.NoError(t, store.SaveDiagnosis(ctx, &rec))
	}

	stored, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, db.Stats{Total: 5, Positive: 2, Negative: 3}, stored)

	e := newTestExporter(t, store)
	path, err := e.Export(ctx, patient, features, ml.PredictionResult{Label: 1, Probability: 0.75})
	require.NoError(t, err)
	assert.Equal(t, stored, exportedCounts(t, path))
}

func TestExportCountsEmptyStore(t *testing.T) {
	e := newTestExporter(t, newSQLiteStore(t))
	path, err := e.Export(context.Background(), patient, features, ml.PredictionResult{})
	require.NoError(t, err)
	assert.Equal(t, db.Stats{}, exportedCounts(t, path))
}
