package table

import (
	"github.com/rotisserie/eris"
)

// ErrRaggedRow is returned when a record's width differs from the header's.
var ErrRaggedRow = eris.New("table: row width differs from header")

// FromRecords builds a table from a header and string records.
//
// Cells whose text is in naValues become missing. A column whose every
// remaining cell parses as a number is stored as numbers; otherwise all of
// its cells are kept as strings, so a single stray token keeps the whole
// column textual.
func FromRecords(header []string, records [][]string, naValues map[string]struct{}) (*Table, error) {
	if len(header) == 0 {
		return nil, eris.New("table: empty header")
	}

	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if _, dup := seen[name]; dup {
			return nil, eris.Errorf("table: duplicate column name %q", name)
		}
		seen[name] = struct{}{}
	}

	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, eris.Wrapf(ErrRaggedRow, "record %d has %d fields, header has %d", i+1, len(rec), len(header))
		}
	}

	t := New(len(records))
	for j, name := range header {
		values := make([]Value, len(records))
		numeric := true
		for i, rec := range records {
			cell := rec[j]
			if _, na := naValues[cell]; na {
				continue
			}
			if f, ok := ParseNumber(cell); ok && numeric {
				values[i] = Number(f)
				continue
			}
			numeric = false
			values[i] = String(cell)
		}
		if !numeric {
			for i, rec := range records {
				if _, na := naValues[rec[j]]; !na {
					values[i] = String(rec[j])
				}
			}
		}
		if err := t.SetColumn(name, values); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Records renders the table back to a header and string records.
// Missing cells render as "".
func (t *Table) Records() ([]string, [][]string) {
	header := t.Names()
	records := make([][]string, t.rows)
	for i := range t.rows {
		rec := make([]string, len(t.cols))
		for j, c := range t.cols {
			rec[j] = c.Values[i].Text()
		}
		records[i] = rec
	}
	return header, records
}
