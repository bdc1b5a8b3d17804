package remediate

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/readmit-dqi/internal/table"
)

// Derived target columns.
const (
	TargetAny    = "readmitted_target"
	Target30Days = "readmit_30days"
)

// readmitLabels maps a readmission label to its (any, within 30 days)
// targets.
var readmitLabels = map[string][2]float64{
	"NO":  {0, 0},
	"<30": {1, 1},
	">30": {1, 0},
	"YES": {1, 0},
}

// DeriveReadmissionTarget appends the binary targets computed from the
// source column, which is kept. Unrecognized or missing labels give
// missing targets.
func DeriveReadmissionTarget(t *table.Table, source string) ([]string, error) {
	col, err := t.Column(source)
	if err != nil {
		return nil, eris.Wrapf(err, "remediate: derive target from %s", source)
	}

	anyVals := make([]table.Value, col.Len())
	within := make([]table.Value, col.Len())
	for i, v := range col.Values {
		s, ok := v.Str()
		if !ok {
			continue
		}
		if tgt, ok := readmitLabels[s]; ok {
			anyVals[i] = table.Number(tgt[0])
			within[i] = table.Number(tgt[1])
		}
	}
	if err := t.SetColumn(TargetAny, anyVals); err != nil {
		return nil, err
	}
	if err := t.SetColumn(Target30Days, within); err != nil {
		return nil, err
	}
	return []string{TargetAny, Target30Days}, nil
}
