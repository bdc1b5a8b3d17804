package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/readmit-dqi/internal/audit"
	"github.com/sells-group/readmit-dqi/internal/remediate"
	"github.com/sells-group/readmit-dqi/internal/validate"
)

// writeJSON encodes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatAudit writes the DQI, the clean report and the profile of r.
func formatAudit(out io.Writer, r *audit.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Source:\t%s\n", r.Source)
	_, _ = fmt.Fprintf(w, "Raw rows:\t%d\n", r.RawRows)
	_, _ = fmt.Fprintf(w, "Raw duplicates:\t%d\n", r.RawDuplicates)
	_, _ = fmt.Fprintf(w, "Rows after clean:\t%d\n", r.Profile.Rows)
	_, _ = fmt.Fprintf(w, "Patients:\t%d\n", r.Profile.Patients)
	if m := r.Profile.MeanTimeInHospital; m != nil {
		_, _ = fmt.Fprintf(w, "Mean time in hospital:\t%.2f days\n", *m)
	}
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintf(w, "Baseline DQI:\t%.4f\n", r.Baseline)
	for _, c := range r.DQI.Components() {
		_, _ = fmt.Fprintf(w, "  %s:\t%.4f\n", c.Name, c.Score)
	}
	_, _ = fmt.Fprintf(w, "DQI:\t%.4f (%.2f%%)\n", r.DQI.Score, r.DQI.Percent())
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "STEP\tCOLUMN\tCELLS\tDETAIL")
	_, _ = fmt.Fprintln(w, "----\t------\t-----\t------")
	for _, op := range r.Clean.Operations {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", op.Step, op.Column, op.Cells, op.Detail)
	}
	_, _ = fmt.Fprintln(w)

	p := r.Profile
	for _, d := range []struct {
		name   string
		values []audit.ValueCount
	}{
		{"gender", p.Gender},
		{"race", p.Race},
		{"age", p.Age},
		{"admission_type", p.AdmissionType},
		{"admission_source", p.AdmissionSource},
		{"discharge", p.Discharge},
		{"readmitted", p.Readmitted},
	} {
		for _, vc := range d.values {
			value := vc.Value
			if vc.Missing {
				value = "(missing)"
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%.1f%%\n", d.name, value, vc.Count, vc.Percent)
		}
	}
	_ = w.Flush()
}

// formatRemediation writes which columns each remediation step touched.
func formatRemediation(out io.Writer, m remediate.Metadata) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Imputed columns:\t%d\n", len(m.NumericColumns))
	_, _ = fmt.Fprintf(w, "Code columns:\t%v\n", m.CodeColumns)
	_, _ = fmt.Fprintf(w, "Target columns:\t%v\n", m.TargetColumns)
	_, _ = fmt.Fprintf(w, "Imputation rounds:\t%d\n", m.Imputation.Rounds)
	_, _ = fmt.Fprintf(w, "Converged:\t%t\n", m.Imputation.Converged)
	_ = w.Flush()
}

// formatValidation writes one row of summary statistics per column.
func formatValidation(out io.Writer, results []validate.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLUMN\tN_BEFORE\tN_AFTER\tMEAN_BEFORE\tMEAN_AFTER\tSTD_BEFORE\tSTD_AFTER\tKS\tPLOT")
	_, _ = fmt.Fprintln(w, "------\t--------\t-------\t-----------\t----------\t----------\t---------\t--\t----")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.4f\t%s\n",
			r.Column, r.BeforeCount, r.AfterCount,
			r.BeforeMean, r.AfterMean, r.BeforeStd, r.AfterStd,
			r.KS, r.Artifact,
		)
	}
	_ = w.Flush()
}
