package http

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"path/filepath"
	"strconv"

	"diabetesdx/diagnosis"
	"diabetesdx/ml"

	"go.uber.org/zap"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

var fieldLabels = map[string]string{
	"Pregnancies":              "Número de embarazos (Pregnancies)",
	"Glucose":                  "Glucosa (mg/dL)",
	"BloodPressure":            "Presión arterial (mm Hg)",
	"SkinThickness":            "Skin Thickness",
	"Insulin":                  "Insulina",
	"BMI":                      "BMI (Índice de masa corporal)",
	"DiabetesPedigreeFunction": "Diabetes Pedigree Function",
	"Age":                      "Edad (modelo)",
}

type formField struct {
	Name  string
	Label string
	Value string
	Step  string
}

type formView struct {
	Name       string
	Age        string
	Gender     string
	Genders    []string
	MaxAge     int
	Fields     []formField
	Error      string
	Outcome    *formOutcome
	ReportName string
}

type formOutcome struct {
	Diagnosis    string
	Result       ml.PredictionResult
	PersistError string
	ExportError  string
}

// newFormView prefills the form from raw values, falling back to defaults.
func newFormView(raw map[string]string) formView {
	def := diagnosis.DefaultSubmission()
	pick := func(key, fallback string) string {
		if v, ok := raw[key]; ok {
			return v
		}
		return fallback
	}

	view := formView{
		Name:    pick("nombre", def.Patient.Name),
		Age:     pick("edad", strconv.Itoa(def.Patient.Age)),
		Gender:  pick("genero", def.Patient.Gender),
		Genders: diagnosis.Genders,
		MaxAge:  diagnosis.MaxPatientAge,
	}
	defaults := def.Features.Values()
	for i, name := range ml.FeatureNames() {
		step := "1"
		if name == "BMI" || name == "DiabetesPedigreeFunction" || name == "Glucose" {
			step = "any"
		}
		view.Fields = append(view.Fields, formField{
			Name:  name,
			Label: fieldLabels[name],
			Value: pick(name, strconv.FormatFloat(defaults[i], 'f', -1, 64)),
			Step:  step,
		})
	}
	return view
}

func (h *Handlers) render(w http.ResponseWriter, status int, view formView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, view); err != nil {
		h.Logger.Error("render form", zap.Error(err))
	}
}

// GET /
func (h *Handlers) handleForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, newFormView(nil))
}

// POST /
func (h *Handlers) handleFormSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		view := newFormView(nil)
		view.Error = "formulario inválido: " + err.Error()
		h.render(w, http.StatusBadRequest, view)
		return
	}
	raw := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		raw[k] = r.PostForm.Get(k)
	}
	view := newFormView(raw)

	sub, err := diagnosis.ParseForm(raw)
	if err != nil {
		view.Error = err.Error()
		h.render(w, http.StatusBadRequest, view)
		return
	}
	out, err := h.Service.Submit(r.Context(), sub)
	if err != nil {
		view.Error = err.Error()
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			h.Logger.Error("form submission failed", zap.Error(err))
		}
		h.render(w, status, view)
		return
	}

	view.Outcome = &formOutcome{Diagnosis: out.Diagnosis, Result: out.Result}
	if out.PersistError != nil {
		msg := out.PersistError.Error()
		if errors.Is(out.PersistError, diagnosis.ErrStoreDisabled) {
			msg = "no hay base de datos configurada"
		}
		view.Outcome.PersistError = msg
	}
	if out.ExportError != nil {
		view.Outcome.ExportError = out.ExportError.Error()
	}
	if out.ReportPath != "" {
		view.ReportName = filepath.Base(out.ReportPath)
	}
	h.render(w, http.StatusOK, view)
}
