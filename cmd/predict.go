package cmd

import (
	"encoding/json"
	"fmt"

	"diabetesdx/diagnosis"
	"diabetesdx/ml"

	"github.com/spf13/cobra"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		fv        = diagnosis.DefaultSubmission().Features
		modelPath string
		threshold float64
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Score one set of clinical measurements with the trained model",
		Example: "  diabetesdx predict --pregnancies 6 --glucose 148 --blood-pressure 72 \\\n" +
			"    --skin-thickness 35 --insulin 0 --bmi 33.6 --pedigree 0.627 --age 50",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfg.ML.ModelPath
			if modelPath != "" {
				path = modelPath
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = a.cfg.ML.Threshold
			}

			model, err := ml.LoadModel(a.cfg.ML.ModelType, path)
			if err != nil {
				return err
			}
			predictor, err := ml.NewPredictor(model, threshold)
			if err != nil {
				return err
			}
			result, err := predictor.Predict(fv)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Features  ml.FeatureVector `json:"features"`
					Label     int              `json:"label"`
					Diagnosis string           `json:"diagnosis"`
					Proba     float64          `json:"probability"`
				}{fv, result.Label, result.Describe(), result.Probability})
			}
			fmt.Fprintf(out, "%s\nprobabilidad: %.2f\n", result.Describe(), result.Probability)
			return nil
		},
	}

	f := cmd.Flags()
	f.Float64Var(&fv.Pregnancies, "pregnancies", fv.Pregnancies, "number of pregnancies")
	f.Float64Var(&fv.Glucose, "glucose", fv.Glucose, "plasma glucose (mg/dL)")
	f.Float64Var(&fv.BloodPressure, "blood-pressure", fv.BloodPressure, "diastolic blood pressure (mm Hg)")
	f.Float64Var(&fv.SkinThickness, "skin-thickness", fv.SkinThickness, "triceps skin fold thickness (mm)")
	f.Float64Var(&fv.Insulin, "insulin", fv.Insulin, "2-hour serum insulin (mu U/ml)")
	f.Float64Var(&fv.BMI, "bmi", fv.BMI, "body mass index")
	f.Float64Var(&fv.DiabetesPedigreeFunction, "pedigree", fv.DiabetesPedigreeFunction, "diabetes pedigree function")
	f.Float64Var(&fv.Age, "age", fv.Age, "age in years")
	f.StringVar(&modelPath, "model", "", "override ml.model_path")
	f.Float64Var(&threshold, "threshold", ml.DefaultThreshold, "decision threshold in [0,1)")
	f.BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
