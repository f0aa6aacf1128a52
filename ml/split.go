package ml

import (
	"errors"
	"math"
	"math/rand"
	"sort"
)

// StratifiedSplit partitions ds into train and test sets keeping each class's
// share of the test set as close to testRatio as rounding allows. The same
// seed always yields the same partition.
func StratifiedSplit(ds *Dataset, testRatio float64, seed int64) (train, test *Dataset, err error) {
	if ds == nil || ds.Len() == 0 {
		return nil, nil, errors.New("dataset is empty")
	}
	if testRatio <= 0 || testRatio >= 1 {
		return nil, nil, errors.New("test ratio must be between 0 and 1")
	}

	byClass := make(map[int][]int)
	for i, label := range ds.Labels {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for label := range byClass {
		classes = append(classes, label)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	var trainIdx, testIdx []int
	for _, label := range classes {
		rows := byClass[label]
		rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

		nTest := int(math.Round(float64(len(rows)) * testRatio))
		if len(rows) >= 2 {
			nTest = min(max(nTest, 1), len(rows)-1)
		}
		testIdx = append(testIdx, rows[:nTest]...)
		trainIdx = append(trainIdx, rows[nTest:]...)
	}
	rng.Shuffle(len(trainIdx), func(i, j int) { trainIdx[i], trainIdx[j] = trainIdx[j], trainIdx[i] })
	rng.Shuffle(len(testIdx), func(i, j int) { testIdx[i], testIdx[j] = testIdx[j], testIdx[i] })

	return ds.subset(trainIdx), ds.subset(testIdx), nil
}

func (d *Dataset) subset(indices []int) *Dataset {
	out := &Dataset{
		Features: make([][]float64, len(indices)),
		Labels:   make([]int, len(indices)),
	}
	for i, idx := range indices {
		out.Features[i] = d.Features[idx]
		out.Labels[i] = d.Labels[idx]
	}
	return out
}
