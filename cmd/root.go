package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "readmit-dqi",
	Short: "Clinical readmissions data quality audit and remediation",
	Long:  "Scores a readmissions extract with a Data Quality Index, imputes missing numeric values, normalizes diagnosis codes, derives readmission targets and validates the result.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
