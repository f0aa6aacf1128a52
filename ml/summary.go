package ml

import (
	"errors"
)

// FeatureStats describes one column of a dataset.
type FeatureStats struct {
	Name  string  `json:"name"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Zeros int     `json:"zeros"`
}

// Summarize computes per-feature min, max, mean and zero counts in
// FeatureNames order. Zeros matter here: the source data encodes unmeasured
// glucose, insulin and skin thickness as 0.
func Summarize(ds *Dataset) ([]FeatureStats, error) {
	if ds == nil || ds.Len() == 0 {
		return nil, errors.New("dataset is empty")
	}
	names := FeatureNames()
	stats := make([]FeatureStats, len(names))
	for i, name := range names {
		stats[i] = FeatureStats{Name: name, Min: ds.Features[0][i], Max: ds.Features[0][i]}
	}
	for _, row := range ds.Features {
		for i, value := range row {
			s := &stats[i]
			if value < s.Min {
				s.Min = value
			}
			if value > s.Max {
				s.Max = value
			}
			if value == 0 {
				s.Zeros++
			}
			s.Mean += value
		}
	}
	for i := range stats {
		stats[i].Mean /= float64(ds.Len())
	}
	return stats, nil
}
