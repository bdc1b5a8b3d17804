// Package export writes remediated tables and audit reports to files and
// Postgres.
package export

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/readmit-dqi/internal/table"
)

// WriteCSV writes t with a header row. Missing cells are empty.
func WriteCSV(path string, t *table.Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := EncodeCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}

// EncodeCSV streams t as CSV to w.
func EncodeCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	cols := t.Columns()
	record := make([]string, len(cols))
	for i := range t.NumRows() {
		for j, c := range cols {
			record[j] = c.Values[i].Text()
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrapf(err, "export: write csv row %d", i)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}
