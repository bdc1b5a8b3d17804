package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run <source>",
	Short: "Run the full audit, remediation, validation and export pipeline",
	Long:  "Executes every phase for one source, records the run and its phases in the run store, writes the configured exports and sends DQI alerts.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Pipeline.Run(ctx, args[0])
		if err != nil {
			if result != nil {
				zap.L().Error("run failed", zap.String("run_id", result.RunID), zap.Error(err))
			}
			return err
		}

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.Float64("dqi", result.Audit.DQI.Score),
			zap.Int("artifacts", len(result.Artifacts)),
			zap.Int("alerts", len(result.Alerts)),
		)

		return writeJSON(os.Stdout, result.RunResult)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
