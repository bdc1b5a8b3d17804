package audit

import (
	"github.com/sells-group/readmit-dqi/internal/table"
)

// DQIComponents holds the three quality dimensions and their mean, each
// in [0,1].
type DQIComponents struct {
	Completeness     float64 `json:"completeness" yaml:"completeness"`
	CodedConsistency float64 `json:"coded_consistency" yaml:"coded_consistency"`
	DuplicateFreedom float64 `json:"duplicate_freedom" yaml:"duplicate_freedom"`
	Score            float64 `json:"score" yaml:"score"`
}

// Percent returns the score scaled to [0,100].
func (d DQIComponents) Percent() float64 { return d.Score * 100 }

// Components returns the three dimensions by name, in a stable order.
func (d DQIComponents) Components() []NamedScore {
	return []NamedScore{
		{Name: "completeness", Score: d.Completeness},
		{Name: "coded_consistency", Score: d.CodedConsistency},
		{Name: "duplicate_freedom", Score: d.DuplicateFreedom},
	}
}

// NamedScore pairs a dimension name with its score.
type NamedScore struct {
	Name  string
	Score float64
}

// Check is one coded-consistency rule applied to a column.
type Check struct {
	Column   string
	Allowed  []string // string cell must be one of these
	Positive bool     // cell must be a number > 0
}

func (c Check) pass(v table.Value) bool {
	if c.Positive {
		f, ok := v.Float()
		return ok && f > 0
	}
	s, ok := v.Str()
	if !ok {
		return false
	}
	for _, a := range c.Allowed {
		if s == a {
			return true
		}
	}
	return false
}

// DefaultChecklist is the coded-consistency checklist.
var DefaultChecklist = []Check{
	{Column: ColGender, Allowed: []string{"Male", "Female"}},
	{Column: ColReadmitted, Allowed: []string{"NO", "<30", ">30"}},
	{Column: "admission_type_id", Positive: true},
	{Column: "discharge_disposition_id", Positive: true},
	{Column: "admission_source_id", Positive: true},
	{Column: ColTimeInHospital, Positive: true},
}

// ComputeDQI scores t. rawRows and rawDuplicates come from the table as
// loaded, before cleaning.
func ComputeDQI(t *table.Table, rawRows, rawDuplicates int) DQIComponents {
	d := DQIComponents{
		Completeness:     completeness(t),
		CodedConsistency: codedConsistency(t, DefaultChecklist),
		DuplicateFreedom: duplicateFreedom(rawRows, rawDuplicates),
	}
	d.Score = (d.Completeness + d.CodedConsistency + d.DuplicateFreedom) / 3
	return d
}

func completeness(t *table.Table) float64 {
	rows := t.NumRows()
	if t.NumCols() == 0 || rows == 0 {
		return 1
	}
	var sum float64
	for _, col := range t.Columns() {
		sum += 1 - float64(col.MissingCount())/float64(rows)
	}
	return sum / float64(t.NumCols())
}

// codedConsistency averages the pass rate of the checks whose column is
// present. With no such column it is a vacuous pass.
func codedConsistency(t *table.Table, checks []Check) float64 {
	var sum float64
	present := 0
	for _, c := range checks {
		col, err := t.Column(c.Column)
		if err != nil {
			continue
		}
		present++
		if col.Len() == 0 {
			sum++
			continue
		}
		passed := 0
		for _, v := range col.Values {
			if c.pass(v) {
				passed++
			}
		}
		sum += float64(passed) / float64(col.Len())
	}
	if present == 0 {
		return 1
	}
	return sum / float64(present)
}

func duplicateFreedom(rawRows, rawDuplicates int) float64 {
	return 1 - float64(rawDuplicates)/float64(max(1, rawRows))
}

// BaselineDQI is the null density score of the raw table: the share of
// cells that are neither missing nor the "?" placeholder. An empty table
// scores 1.
func BaselineDQI(raw *table.Table) float64 {
	total := raw.NumRows() * raw.NumCols()
	if total == 0 {
		return 1
	}
	bad := 0
	for _, col := range raw.Columns() {
		for _, v := range col.Values {
			if v.IsMissing() {
				bad++
				continue
			}
			if s, ok := v.Str(); ok && s == "?" {
				bad++
			}
		}
	}
	return 1 - float64(bad)/float64(total)
}
