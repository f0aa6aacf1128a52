package ml

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidFeature is wrapped by every FieldError.
var ErrInvalidFeature = errors.New("invalid feature value")

// FieldError reports the feature that failed validation or coercion.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("%s=%q: %s", e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidFeature
}

// FeatureVector is the classifier input. Field order matches FeatureNames and
// the column order the model was trained with.
type FeatureVector struct {
	Pregnancies              float64 `json:"Pregnancies"`
	Glucose                  float64 `json:"Glucose"`
	BloodPressure            float64 `json:"BloodPressure"`
	SkinThickness            float64 `json:"SkinThickness"`
	Insulin                  float64 `json:"Insulin"`
	BMI                      float64 `json:"BMI"`
	DiabetesPedigreeFunction float64 `json:"DiabetesPedigreeFunction"`
	Age                      float64 `json:"Age"`
}

// PredictionResult is the label for the positive class threshold and the
// probability of the positive class.
type PredictionResult struct {
	Label       int     `json:"label"`
	Probability float64 `json:"probability"`
}

// Positive reports whether the diagnosis flags risk.
func (r PredictionResult) Positive() bool {
	return r.Label == 1
}

// Describe returns the wording shown to the user and written to reports.
func (r PredictionResult) Describe() string {
	if r.Positive() {
		return "Positivo (riesgo)"
	}
	return "Negativo (bajo riesgo)"
}

const featureCount = 8

func FeatureNames() []string {
	return []string{
		"Pregnancies",
		"Glucose",
		"BloodPressure",
		"SkinThickness",
		"Insulin",
		"BMI",
		"DiabetesPedigreeFunction",
		"Age",
	}
}

// Values returns the vector in training column order.
func (f FeatureVector) Values() []float64 {
	return []float64{
		f.Pregnancies,
		f.Glucose,
		f.BloodPressure,
		f.SkinThickness,
		f.Insulin,
		f.BMI,
		f.DiabetesPedigreeFunction,
		f.Age,
	}
}

// FeatureVectorFromValues is the inverse of Values.
func FeatureVectorFromValues(values []float64) (FeatureVector, error) {
	if len(values) != featureCount {
		return FeatureVector{}, fmt.Errorf("expected %d feature values, got %d", featureCount, len(values))
	}
	return FeatureVector{
		Pregnancies:              values[0],
		Glucose:                  values[1],
		BloodPressure:            values[2],
		SkinThickness:            values[3],
		Insulin:                  values[4],
		BMI:                      values[5],
		DiabetesPedigreeFunction: values[6],
		Age:                      values[7],
	}, nil
}

// Validate rejects values the form would never produce: negative, NaN or
// infinite measurements and fractional counts.
func (f FeatureVector) Validate() error {
	names := FeatureNames()
	for i, value := range f.Values() {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return &FieldError{Field: names[i], Reason: "must be a finite number"}
		}
		if value < 0 {
			return &FieldError{Field: names[i], Value: formatFloat(value), Reason: "must not be negative"}
		}
	}
	if f.Pregnancies != math.Trunc(f.Pregnancies) {
		return &FieldError{Field: "Pregnancies", Value: formatFloat(f.Pregnancies), Reason: "must be a whole number"}
	}
	if f.Age != math.Trunc(f.Age) {
		return &FieldError{Field: "Age", Value: formatFloat(f.Age), Reason: "must be a whole number"}
	}
	return nil
}

// ParseFeatures coerces string input such as form values into a FeatureVector.
// Absent or blank fields default to 0; anything that is not a number fails.
// Keys are matched case-insensitively.
func ParseFeatures(input map[string]string) (FeatureVector, error) {
	lookup := make(map[string]string, len(input))
	for key, value := range input {
		lookup[strings.ToLower(key)] = value
	}

	values := make([]float64, featureCount)
	for i, name := range FeatureNames() {
		raw := strings.TrimSpace(lookup[strings.ToLower(name)])
		if raw == "" {
			continue
		}
		value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
		if err != nil {
			return FeatureVector{}, &FieldError{Field: name, Value: raw, Reason: "not a number"}
		}
		values[i] = value
	}

	fv, err := FeatureVectorFromValues(values)
	if err != nil {
		return FeatureVector{}, err
	}
	if err := fv.Validate(); err != nil {
		return FeatureVector{}, err
	}
	return fv, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
