package export

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/readmit-dqi/internal/audit"
)

// Sheet names in the XLSX report.
const (
	SheetSummary    = "Summary"
	SheetProfile    = "Profile"
	SheetValidation = "Validation"
)

// WriteReportXLSX writes r as a workbook with Summary, Profile and
// Validation sheets.
func WriteReportXLSX(path string, r *Report) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}
	addStrings(summary, "metric", "value")
	addStrings(summary, "source", r.Source)
	addStrings(summary, "generated_at", r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))
	addInt(summary, "raw_rows", r.RawRows)
	addInt(summary, "raw_duplicates", r.RawDuplicates)
	addInt(summary, "rows", r.Rows)
	addInt(summary, "patients", r.Profile.Patients)
	addFloat(summary, "baseline_dqi", r.BaselineDQI)
	for _, c := range r.DQI.Components() {
		addFloat(summary, c.Name, c.Score)
	}
	addFloat(summary, "dqi", r.DQI.Score)
	addFloat(summary, "dqi_percent", r.DQIPercent)
	if r.Profile.MeanTimeInHospital != nil {
		addFloat(summary, "mean_time_in_hospital", *r.Profile.MeanTimeInHospital)
	}
	for _, op := range r.Clean.Operations {
		label := op.Step
		if op.Column != "" {
			label += ":" + op.Column
		}
		addInt(summary, label, op.Cells)
	}

	profile, err := f.AddSheet(SheetProfile)
	if err != nil {
		return eris.Wrap(err, "export: add profile sheet")
	}
	addStrings(profile, "field", "value", "count", "percent")
	for _, d := range []struct {
		field  string
		counts []audit.ValueCount
	}{
		{"gender", r.Profile.Gender},
		{"race", r.Profile.Race},
		{"age", r.Profile.Age},
		{"admission_type", r.Profile.AdmissionType},
		{"admission_source", r.Profile.AdmissionSource},
		{"discharge", r.Profile.Discharge},
		{"readmitted", r.Profile.Readmitted},
	} {
		for _, vc := range d.counts {
			value := vc.Value
			if vc.Missing {
				value = "(missing)"
			}
			row := profile.AddRow()
			row.AddCell().SetString(d.field)
			row.AddCell().SetString(value)
			row.AddCell().SetInt(vc.Count)
			row.AddCell().SetFloat(vc.Percent)
		}
	}

	validation, err := f.AddSheet(SheetValidation)
	if err != nil {
		return eris.Wrap(err, "export: add validation sheet")
	}
	addStrings(validation, "column", "before_count", "after_count",
		"before_mean", "after_mean", "before_std", "after_std", "ks", "artifact")
	for _, v := range r.Validation {
		row := validation.AddRow()
		row.AddCell().SetString(v.Column)
		row.AddCell().SetInt(v.BeforeCount)
		row.AddCell().SetInt(v.AfterCount)
		row.AddCell().SetFloat(v.BeforeMean)
		row.AddCell().SetFloat(v.AfterMean)
		row.AddCell().SetFloat(v.BeforeStd)
		row.AddCell().SetFloat(v.AfterStd)
		row.AddCell().SetFloat(v.KS)
		row.AddCell().SetString(v.Artifact)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func addStrings(s *xlsx.Sheet, values ...string) {
	row := s.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func addInt(s *xlsx.Sheet, key string, value int) {
	row := s.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetInt(value)
}

func addFloat(s *xlsx.Sheet, key string, value float64) {
	row := s.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetFloat(value)
}
