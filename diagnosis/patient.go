package diagnosis

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"diabetesdx/db"
	"diabetesdx/ml"
)

var ErrInvalidPatient = errors.New("invalid patient")

// Genders lists the accepted values in the order the form shows them.
var Genders = []string{"Masculino", "Femenino", "Otro"}

const (
	MaxPatientAge = 120
	maxNameRunes  = 255
	defaultAge    = 30
	defaultGender = "Masculino"
)

// Submission is one filled-in form.
type Submission struct {
	Patient  db.Patient       `json:"patient"`
	Features ml.FeatureVector `json:"features"`
}

// DefaultSubmission is what a blank form starts with.
func DefaultSubmission() Submission {
	return Submission{
		Patient: db.Patient{Age: defaultAge, Gender: defaultGender},
		Features: ml.FeatureVector{
			Glucose:                  120,
			BloodPressure:            70,
			SkinThickness:            20,
			Insulin:                  79,
			BMI:                      32.0,
			DiabetesPedigreeFunction: 0.5,
			Age:                      30,
		},
	}
}

func ValidatePatient(p db.Patient) error {
	if utf8.RuneCountInString(p.Name) > maxNameRunes {
		return fmt.Errorf("%w: name longer than %d characters", ErrInvalidPatient, maxNameRunes)
	}
	if p.Age < 0 || p.Age > MaxPatientAge {
		return fmt.Errorf("%w: age %d outside 0-%d", ErrInvalidPatient, p.Age, MaxPatientAge)
	}
	for _, g := range Genders {
		if p.Gender == g {
			return nil
		}
	}
	return fmt.Errorf("%w: gender %q not one of %s", ErrInvalidPatient, p.Gender, strings.Join(Genders, ", "))
}

// ParseForm builds a Submission from raw form fields. The patient fields are
// nombre, edad and genero; every other key is handed to ml.ParseFeatures.
func ParseForm(fields map[string]string) (Submission, error) {
	var sub Submission
	sub.Patient.Name = strings.TrimSpace(fields["nombre"])
	sub.Patient.Gender = strings.TrimSpace(fields["genero"])

	if raw := strings.TrimSpace(fields["edad"]); raw != "" {
		age, err := strconv.Atoi(raw)
		if err != nil {
			return sub, fmt.Errorf("%w: edad=%q is not a whole number", ErrInvalidPatient, raw)
		}
		sub.Patient.Age = age
	}
	if err := ValidatePatient(sub.Patient); err != nil {
		return sub, err
	}

	features := make(map[string]string, len(fields))
	for k, v := range fields {
		switch k {
		case "nombre", "edad", "genero":
			continue
		}
		features[k] = v
	}
	fv, err := ml.ParseFeatures(features)
	if err != nil {
		return sub, err
	}
	sub.Features = fv
	return sub, nil
}
