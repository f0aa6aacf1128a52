package cmd

import (
	"fmt"
	"time"

	"diabetesdx/db"
	"diabetesdx/ml"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTrainCmd(a *app) *cobra.Command {
	var (
		dataset string
		output  string
		trees   int
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the model on the dataset and write the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			tc := a.cfg.TrainingConfig()
			if dataset != "" {
				tc.DatasetPath = dataset
			}
			if output != "" {
				tc.ModelPath = output
			}
			if cmd.Flags().Changed("trees") {
				tc.Params.NEstimators = trees
			}
			if cmd.Flags().Changed("seed") {
				tc.Params.Seed = seed
			}

			result, err := ml.Train(tc, a.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Accuracy: %.4f\n\n", result.Report.Accuracy)
			fmt.Fprint(out, result.Report.String())
			fmt.Fprintf(out, "\nmodel %s saved to %s (%d train / %d test rows, depth %d, %s)\n",
				result.ModelType, result.ModelPath, result.TrainSize, result.TestSize, result.Depth, result.Duration.Round(time.Millisecond))

			gateway, err := a.gateway(cmd.Context())
			if err != nil {
				a.logger.Warn("training log not recorded", zap.Error(err))
				return nil
			}
			if gateway == nil {
				return nil
			}
			positive := result.Report.Positive()
			entry := db.TrainingLog{
				ModelName:  result.ModelType,
				Accuracy:   result.Report.Accuracy,
				Precision:  positive.Precision,
				Recall:     positive.Recall,
				F1:         positive.F1,
				TrainedAt:  result.TrainedAt,
				DataPoints: result.TrainSize + result.TestSize,
			}
			if err := gateway.SaveTrainingLog(cmd.Context(), entry); err != nil {
				a.logger.Warn("training log not recorded", zap.Error(err))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "", "override ml.dataset_path")
	cmd.Flags().StringVarP(&output, "output", "o", "", "override ml.model_path")
	cmd.Flags().IntVar(&trees, "trees", 0, "override ml.forest.n_estimators")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override ml.forest.seed")
	return cmd
}
