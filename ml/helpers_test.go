package ml

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// syntheticDataset draws plausible measurements where the outcome depends
// only on glucose crossing 125 mg/dL.
func syntheticDataset(n int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &Dataset{}
	for i := 0; i < n; i++ {
		glucose := 60 + rng.Float64()*140
		row := []float64{
			float64(rng.Intn(12)),
			glucose,
			50 + rng.Float64()*50,
			rng.Float64() * 50,
			rng.Float64() * 300,
			18 + rng.Float64()*25,
			rng.Float64() * 2,
			float64(21 + rng.Intn(50)),
		}
		label := 0
		if glucose > 125 {
			label = 1
		}
		ds.Features = append(ds.Features, row)
		ds.Labels = append(ds.Labels, label)
	}
	return ds
}

func writeDatasetCSV(t *testing.T, ds *Dataset) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.Join(append(FeatureNames(), LabelColumn), ","))
	b.WriteString("\n")
	for i, row := range ds.Features {
		for _, v := range row {
			fmt.Fprintf(&b, "%g,", v)
		}
		fmt.Fprintf(&b, "%d\n", ds.Labels[i])
	}
	path := filepath.Join(t.TempDir(), "dataset.csv")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}
	return path
}

var exampleVector = FeatureVector{
	Pregnancies:              6,
	Glucose:                  148,
	BloodPressure:            72,
	SkinThickness:            35,
	Insulin:                  0,
	BMI:                      33.6,
	DiabetesPedigreeFunction: 0.627,
	Age:                      50,
}
