package ml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sjwhitworth/golearn/base"
)

// LabelColumn is the binary outcome column of the training CSV.
const LabelColumn = "Outcome"

// Dataset is a labeled feature matrix in FeatureNames column order.
type Dataset struct {
	Features [][]float64
	Labels   []int
}

func (d *Dataset) Len() int {
	return len(d.Labels)
}

// ClassCounts returns the number of rows per label.
func (d *Dataset) ClassCounts() map[int]int {
	counts := make(map[int]int)
	for _, label := range d.Labels {
		counts[label]++
	}
	return counts
}

func LoadDatasetFile(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer file.Close()

	ds, err := LoadDataset(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// LoadDataset parses a CSV with a header row into golearn instances and
// reads the columns back by name, so their order in the file does not matter
// and unknown columns are ignored.
func LoadDataset(r io.Reader) (*Dataset, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\ufeff"))
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("dataset is empty")
	}
	if !hasDataRows(raw) {
		return nil, errors.New("dataset has no rows")
	}

	instances, err := parseInstances(raw)
	if err != nil {
		return nil, err
	}
	return datasetFromInstances(instances)
}

func hasDataRows(raw []byte) bool {
	newline := bytes.IndexByte(raw, '\n')
	return newline >= 0 && len(bytes.TrimSpace(raw[newline+1:])) > 0
}

// parseInstances turns golearn's panics on malformed rows into errors.
func parseInstances(raw []byte) (instances *base.DenseInstances, err error) {
	defer func() {
		if r := recover(); r != nil {
			instances, err = nil, fmt.Errorf("parse csv: %v", r)
		}
	}()
	instances, err = base.ParseCSVToInstancesFromReader(bytes.NewReader(raw), true)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return instances, nil
}

func datasetFromInstances(instances *base.DenseInstances) (*Dataset, error) {
	byName := make(map[string]base.AttributeSpec)
	for _, attr := range instances.AllAttributes() {
		spec, err := instances.GetAttribute(attr)
		if err != nil {
			return nil, err
		}
		byName[strings.TrimSpace(attr.GetName())] = spec
	}

	names := FeatureNames()
	columns := make([]base.AttributeSpec, len(names))
	var missing []string
	for i, name := range names {
		spec, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		columns[i] = spec
	}
	labelSpec, ok := byName[LabelColumn]
	if !ok {
		missing = append(missing, LabelColumn)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	_, rows := instances.Size()
	ds := &Dataset{
		Features: make([][]float64, 0, rows),
		Labels:   make([]int, 0, rows),
	}
	for row := 0; row < rows; row++ {
		// header is line 1
		line := row + 2

		values := make([]float64, len(names))
		for i, spec := range columns {
			value, rawValue, ok := cellValue(instances, spec, row)
			if !ok {
				return nil, fmt.Errorf("line %d, column %s: %q is not a number", line, names[i], rawValue)
			}
			values[i] = value
		}

		label, rawLabel, ok := cellValue(instances, labelSpec, row)
		if !ok || (label != 0 && label != 1) {
			return nil, fmt.Errorf("line %d, column %s: %q is not 0 or 1", line, LabelColumn, rawLabel)
		}

		ds.Features = append(ds.Features, values)
		ds.Labels = append(ds.Labels, int(label))
	}
	return ds, nil
}

// cellValue reads one cell as a float. Columns golearn sniffed as
// categorical are parsed from their string form.
func cellValue(instances *base.DenseInstances, spec base.AttributeSpec, row int) (float64, string, bool) {
	sysVal := instances.Get(spec, row)
	if _, isFloat := spec.GetAttribute().(*base.FloatAttribute); isFloat {
		value := base.UnpackBytesToFloat(sysVal)
		return value, strconv.FormatFloat(value, 'f', -1, 64), true
	}
	rawValue := spec.GetAttribute().GetStringFromSysVal(sysVal)
	value, err := strconv.ParseFloat(strings.TrimSpace(rawValue), 64)
	if err != nil {
		return 0, rawValue, false
	}
	return value, rawValue, true
}
