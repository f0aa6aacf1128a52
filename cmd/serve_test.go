package cmd

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"diabetesdx/db"
	"diabetesdx/ml"
	"diabetesdx/monitoring"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingStats struct{}

func (failingStats) Stats(context.Context) (db.Stats, error) {
	return db.Stats{}, errors.New("connection refused")
}

func firstSnapshot(t *testing.T, hub *monitoring.StatsHub) (db.Stats, bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var msg struct {
		Data db.Stats `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		return db.Stats{}, false
	}
	return msg.Data, true
}

func TestPrimeStatsFromStore(t *testing.T) {
	ctx := context.Background()
	gateway, err := db.NewGateway(db.DriverSQLite, filepath.Join(t.TempDir(), "diabetes.db"), nil)
	require.NoError(t, err)
	require.NoError(t, gateway.Migrate(ctx))
	for _, label := range []int{1, 0, 0} {
		rec := db.DiagnosisRecord{
			Patient:  db.Patient{Name: "Ana", Age: 40, Gender: "Femenino"},
			Features: ml.FeatureVector{Glucose: 120, BMI: 30, Age: 40},
			Result:   ml.PredictionResult{Label: label, Probability: 0.4},
		}
		require.NoError(t, gateway.SaveDiagnosis(ctx, &rec))
	}

	hub := monitoring.NewStatsHub(nil)
	primeStats(ctx, hub, gateway, zap.NewNop())

	stats, ok := firstSnapshot(t, hub)
	require.True(t, ok, "no snapshot on connect")
	assert.Equal(t, db.Stats{Total: 3, Positive: 1, Negative: 2}, stats)
}

func TestPrimeStatsStoreDown(t *testing.T) {
	hub := monitoring.NewStatsHub(nil)
	primeStats(context.Background(), hub, failingStats{}, zap.NewNop())

	_, ok := firstSnapshot(t, hub)
	assert.False(t, ok)
}
