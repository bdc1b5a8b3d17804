package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/readmit-dqi/internal/export"
)

var auditCmd = &cobra.Command{
	Use:   "audit <source>",
	Short: "Load, clean, profile and score a dataset",
	Long:  "Computes the Data Quality Index of a readmissions extract. The source may be a local path, an HTTP(S) URL or an FTP URL.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("audit"); err != nil {
			return err
		}

		auditor, err := buildAuditor(cmd.Context())
		if err != nil {
			return err
		}

		result, err := auditor.Run(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "audit")
		}

		if path, _ := cmd.Flags().GetString("report"); path != "" {
			if err := export.WriteReport(path, export.NewReport(result)); err != nil {
				return err
			}
		}

		format, _ := cmd.Flags().GetString("format")
		switch format {
		case "json":
			return writeJSON(os.Stdout, export.NewReport(result))
		case "text":
			formatAudit(os.Stdout, result)
			return nil
		default:
			return eris.Errorf("audit: unknown format %q (want text or json)", format)
		}
	},
}

func init() {
	auditCmd.Flags().String("format", "text", "output format (text, json)")
	auditCmd.Flags().String("report", "", "also write the report to this path (.json, .yaml, .xlsx)")
	rootCmd.AddCommand(auditCmd)
}
