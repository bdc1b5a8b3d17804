package audit

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/codemap"
	"github.com/sells-group/readmit-dqi/internal/table"
)

// Cleaning step names recorded in a CleanReport.
const (
	StepCoerceIDs     = "coerce_ids"
	StepDeriveDesc    = "derive_descriptions"
	StepFoldSentinels = "fold_sentinels"
	StepStripBins     = "strip_bins"
	StepDropDuplicate = "drop_duplicates"
)

// Operation records what one cleaning step did to one column.
type Operation struct {
	Step   string `json:"step" yaml:"step"`
	Column string `json:"column,omitempty" yaml:"column,omitempty"`
	Cells  int    `json:"cells" yaml:"cells"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// CleanReport summarizes a Clean call.
type CleanReport struct {
	RowsBefore        int         `json:"rows_before" yaml:"rows_before"`
	RowsAfter         int         `json:"rows_after" yaml:"rows_after"`
	DuplicatesRemoved int         `json:"duplicates_removed" yaml:"duplicates_removed"`
	Operations        []Operation `json:"operations" yaml:"operations"`
}

// Cells returns the total number of cells a step touched.
func (r CleanReport) Cells(step string) int {
	n := 0
	for _, op := range r.Operations {
		if op.Step == step {
			n += op.Cells
		}
	}
	return n
}

var binReplacer = strings.NewReplacer("[", "", ")", "")

// Clean rewrites t in place. The steps run in a fixed order: ID columns
// are coerced to numbers, description columns are derived through the
// code maps, sentinel strings in every column become missing (including
// "Unknown" descriptions produced by the previous step), range brackets
// are stripped from binned columns, and exact duplicate rows are dropped.
func (a *Auditor) Clean(t *table.Table) (CleanReport, error) {
	report := CleanReport{RowsBefore: t.NumRows()}
	add := func(op Operation) {
		if op.Cells > 0 {
			report.Operations = append(report.Operations, op)
		}
	}

	// IDs to numbers.
	for _, b := range a.maps.Bindings() {
		col, err := t.Column(b.IDColumn)
		if err != nil {
			continue
		}
		coerced := 0
		for i, v := range col.Values {
			s, ok := v.Str()
			if !ok {
				continue
			}
			if f, ok := table.ParseNumber(s); ok {
				col.Values[i] = table.Number(f)
				continue
			}
			col.Values[i] = table.Missing()
			coerced++
		}
		add(Operation{Step: StepCoerceIDs, Column: b.IDColumn, Cells: coerced, Detail: "non-numeric code set to missing"})
	}

	// Description columns.
	for _, b := range a.maps.Bindings() {
		col, err := t.Column(b.IDColumn)
		if err != nil {
			continue
		}
		// A cell left missing by an earlier Clean stays missing when the
		// derived text would be folded again.
		prev, _ := t.Column(b.DescColumn)
		desc := make([]table.Value, len(col.Values))
		unknown := 0
		for i, v := range col.Values {
			d := b.Map.LookupValue(v)
			if prev != nil && prev.Values[i].IsMissing() && a.sentinels.Contains(d) {
				desc[i] = table.Missing()
				continue
			}
			if d == codemap.Unknown {
				unknown++
			}
			desc[i] = table.String(d)
		}
		if err := t.SetColumn(b.DescColumn, desc); err != nil {
			return report, err
		}
		add(Operation{Step: StepDeriveDesc, Column: b.DescColumn, Cells: unknown, Detail: "missing or unmapped code"})
	}

	// Sentinels to missing.
	for _, col := range t.Columns() {
		folded := 0
		for i, v := range col.Values {
			if a.sentinels.IsSentinel(v) {
				col.Values[i] = table.Missing()
				folded++
			}
		}
		add(Operation{Step: StepFoldSentinels, Column: col.Name, Cells: folded})
	}

	// Range brackets.
	for _, name := range a.binned {
		col, err := t.Column(name)
		if err != nil {
			continue
		}
		stripped := 0
		for i, v := range col.Values {
			s, ok := v.Str()
			if !ok {
				continue
			}
			if out := binReplacer.Replace(s); out != s {
				col.Values[i] = table.String(out)
				stripped++
			}
		}
		add(Operation{Step: StepStripBins, Column: name, Cells: stripped})
	}

	report.DuplicatesRemoved = t.DropDuplicates()
	add(Operation{Step: StepDropDuplicate, Cells: report.DuplicatesRemoved, Detail: "rows"})
	report.RowsAfter = t.NumRows()

	a.log.Info("removed duplicate rows", zap.Int("count", report.DuplicatesRemoved))
	return report, nil
}
