// Package validate compares a column's distribution before and after
// remediation and renders density plots of both.
package validate

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/readmit-dqi/internal/codemap"
	"github.com/sells-group/readmit-dqi/internal/table"
)

// Series holds the numeric values of one column before and after
// remediation.
type Series struct {
	Column string
	Before []float64
	After  []float64
}

// NewSeries extracts the column from both tables. Before keeps numbers
// and numeric strings that are not sentinels; after keeps numbers.
// Missing cells are dropped from both.
func NewSeries(before, after *table.Table, column string, sentinels codemap.SentinelSet) (Series, error) {
	bcol, err := before.Column(column)
	if err != nil {
		return Series{}, eris.Wrapf(err, "validate: before %s", column)
	}
	acol, err := after.Column(column)
	if err != nil {
		return Series{}, eris.Wrapf(err, "validate: after %s", column)
	}

	s := Series{
		Column: column,
		Before: make([]float64, 0, bcol.Len()),
		After:  make([]float64, 0, acol.Len()),
	}
	for _, v := range bcol.Values {
		if f, ok := v.Float(); ok {
			s.Before = append(s.Before, f)
			continue
		}
		str, ok := v.Str()
		if !ok || sentinels.Contains(str) {
			continue
		}
		if f, ok := table.ParseNumber(str); ok {
			s.Before = append(s.Before, f)
		}
	}
	for _, v := range acol.Values {
		if f, ok := v.Float(); ok {
			s.After = append(s.After, f)
		}
	}
	return s, nil
}
