package remediate

import (
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/sells-group/readmit-dqi/internal/table"
)

var nonCodeChars = regexp.MustCompile(`[^0-9.]`)

// NormalizeCodeField keeps only digits and dots of every cell's text
// form, so "V27" becomes "27" and a missing cell becomes "". The letter
// prefix of ICD-9 V and E codes is lost, which merges those categories
// with numeric codes. The column is always textual afterwards.
func NormalizeCodeField(t *table.Table, column string) error {
	col, err := t.Column(column)
	if err != nil {
		return eris.Wrapf(err, "remediate: normalize %s", column)
	}
	for i, v := range col.Values {
		col.Values[i] = table.String(nonCodeChars.ReplaceAllString(v.Text(), ""))
	}
	return nil
}
