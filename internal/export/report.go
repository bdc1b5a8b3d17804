package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/readmit-dqi/internal/audit"
	"github.com/sells-group/readmit-dqi/internal/remediate"
	"github.com/sells-group/readmit-dqi/internal/validate"
)

// Report is the serialized outcome of an audit, optionally extended with
// remediation metadata and validation results.
type Report struct {
	Source        string                `json:"source" yaml:"source"`
	GeneratedAt   time.Time             `json:"generated_at" yaml:"generated_at"`
	RawRows       int                   `json:"raw_rows" yaml:"raw_rows"`
	RawDuplicates int                   `json:"raw_duplicates" yaml:"raw_duplicates"`
	Rows          int                   `json:"rows" yaml:"rows"`
	BaselineDQI   float64               `json:"baseline_dqi" yaml:"baseline_dqi"`
	DQI           audit.DQIComponents   `json:"dqi" yaml:"dqi"`
	DQIPercent    float64               `json:"dqi_percent" yaml:"dqi_percent"`
	Profile       audit.ClinicalProfile `json:"profile" yaml:"profile"`
	Clean         audit.CleanReport     `json:"clean" yaml:"clean"`
	Remediation   *remediate.Metadata   `json:"remediation,omitempty" yaml:"remediation,omitempty"`
	Validation    []validate.Result     `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// NewReport builds a Report from an audit result.
func NewReport(r *audit.Result) *Report {
	return &Report{
		Source:        r.Source,
		GeneratedAt:   time.Now().UTC(),
		RawRows:       r.RawRows,
		RawDuplicates: r.RawDuplicates,
		Rows:          r.Profile.Rows,
		BaselineDQI:   r.Baseline,
		DQI:           r.DQI,
		DQIPercent:    r.DQI.Percent(),
		Profile:       r.Profile,
		Clean:         r.Clean,
	}
}

// WithRemediation attaches remediation metadata.
func (r *Report) WithRemediation(m remediate.Metadata) *Report {
	r.Remediation = &m
	return r
}

// WithValidation attaches validation results.
func (r *Report) WithValidation(results []validate.Result) *Report {
	r.Validation = results
	return r
}

// WriteReport writes r in the format implied by the extension of path:
// .json, .yaml, .yml or .xlsx.
func WriteReport(path string, r *Report) error {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".xlsx" {
		return WriteReportXLSX(path, r)
	}

	var (
		data []byte
		err  error
	)
	switch ext {
	case ".json":
		data, err = json.MarshalIndent(r, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(r)
	default:
		return eris.Errorf("export: unsupported report format %q", ext)
	}
	if err != nil {
		return eris.Wrap(err, "export: marshal report")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "export: write %s", path)
}
