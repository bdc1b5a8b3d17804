package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/readmit-dqi/internal/table"
)

var validateCmd = &cobra.Command{
	Use:   "validate <source>",
	Short: "Compare distributions before and after remediation",
	Long:  "Audits and remediates the source, then writes one density plot per column and prints count, mean, standard deviation and the two-sample KS statistic.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("validate"); err != nil {
			return err
		}

		columns, _ := cmd.Flags().GetStringSlice("columns")
		if len(columns) == 0 {
			columns = cfg.Validation.Columns
		}
		outDir, _ := cmd.Flags().GetString("out-dir")
		if outDir == "" {
			outDir = cfg.Validation.OutputDir
		}
		noPlots, _ := cmd.Flags().GetBool("no-plots")

		auditor, err := buildAuditor(ctx)
		if err != nil {
			return err
		}
		result, err := auditor.Run(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "validate: audit")
		}

		final := result.Table.Clone()
		if _, err := buildRemediator().Run(ctx, final); err != nil {
			return eris.Wrap(err, "validate: remediate")
		}

		if err := requireColumns(columns, result.Table, final); err != nil {
			return err
		}

		results, err := buildReporter(outDir, !noPlots).Validate(ctx, result.Table, final, columns)
		if err != nil {
			return eris.Wrap(err, "validate")
		}

		formatValidation(os.Stdout, results)
		return nil
	},
}

// requireColumns fails when a requested column is absent from any table.
func requireColumns(columns []string, tables ...*table.Table) error {
	for _, col := range columns {
		for _, t := range tables {
			if !t.Has(col) {
				return eris.Wrapf(table.ErrColumnNotFound, "validate: column %s", col)
			}
		}
	}
	return nil
}

func init() {
	validateCmd.Flags().StringSlice("columns", nil, "columns to compare (default from config)")
	validateCmd.Flags().String("out-dir", "", "directory for density plots (default from config)")
	validateCmd.Flags().Bool("no-plots", false, "only compute statistics")
	rootCmd.AddCommand(validateCmd)
}
