package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/export"
	"github.com/sells-group/readmit-dqi/internal/table"
)

var remediateCmd = &cobra.Command{
	Use:   "remediate <source>",
	Short: "Audit a dataset, impute missing values and write the result",
	Long:  "Runs the audit, then normalizes diagnosis codes, derives readmission targets and imputes missing numeric values. The output format follows the --out extension (.csv or .parquet).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("remediate"); err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return eris.New("remediate: --out is required")
		}

		auditor, err := buildAuditor(ctx)
		if err != nil {
			return err
		}
		result, err := auditor.Run(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "remediate: audit")
		}

		final := result.Table.Clone()
		meta, err := buildRemediator().Run(ctx, final)
		if err != nil {
			return eris.Wrap(err, "remediate")
		}

		if err := writeTable(out, final); err != nil {
			return err
		}
		zap.L().Info("remediate: wrote table",
			zap.String("path", out),
			zap.Int("rows", final.NumRows()),
			zap.Int("columns", final.NumCols()),
		)

		if path, _ := cmd.Flags().GetString("report"); path != "" {
			if err := export.WriteReport(path, export.NewReport(result).WithRemediation(meta)); err != nil {
				return err
			}
		}

		formatRemediation(os.Stdout, meta)
		return nil
	},
}

// writeTable writes t as CSV or Parquet depending on the extension.
func writeTable(path string, t *table.Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return export.WriteCSV(path, t)
	case ".parquet":
		_, err := export.WriteParquet(path, t)
		return err
	default:
		return eris.Errorf("remediate: unsupported output format %q (want .csv or .parquet)", filepath.Ext(path))
	}
}

func init() {
	remediateCmd.Flags().String("out", "", "output path (.csv or .parquet)")
	remediateCmd.Flags().String("report", "", "also write the audit report to this path (.json, .yaml, .xlsx)")
	rootCmd.AddCommand(remediateCmd)
}
