package table

import (
	"github.com/rotisserie/eris"
)

var (
	// ErrColumnNotFound is returned when an operation names a column the table does not have.
	ErrColumnNotFound = eris.New("table: column not found")

	// ErrLengthMismatch is returned when a column's length differs from the table's row count.
	ErrLengthMismatch = eris.New("table: column length mismatch")
)

// Column is a named sequence of values.
type Column struct {
	Name   string
	Values []Value
}

// Len returns the number of values in the column.
func (c *Column) Len() int { return len(c.Values) }

// MissingCount returns the number of missing values.
func (c *Column) MissingCount() int {
	n := 0
	for _, v := range c.Values {
		if v.IsMissing() {
			n++
		}
	}
	return n
}

// IsNumeric reports whether the column holds at least one number and no strings.
func (c *Column) IsNumeric() bool {
	numbers := 0
	for _, v := range c.Values {
		switch v.Kind() {
		case KindString:
			return false
		case KindNumber:
			numbers++
		}
	}
	return numbers > 0
}

// Table is an ordered set of equal-length columns.
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New returns an empty table with the given row count.
func New(rows int) *Table {
	return &Table{index: make(map[string]int), rows: rows}
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// Columns returns the columns in order. The slice must not be modified.
func (t *Table) Columns() []*Column { return t.cols }

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Has reports whether the table has the named column.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, eris.Wrapf(ErrColumnNotFound, "column %q", name)
	}
	return t.cols[i], nil
}

// SetColumn replaces the named column in place or appends it when absent.
func (t *Table) SetColumn(name string, values []Value) error {
	if len(values) != t.rows {
		return eris.Wrapf(ErrLengthMismatch, "column %q has %d values, table has %d rows", name, len(values), t.rows)
	}
	if i, ok := t.index[name]; ok {
		t.cols[i].Values = values
		return nil
	}
	t.index[name] = len(t.cols)
	t.cols = append(t.cols, &Column{Name: name, Values: values})
	return nil
}

// Row returns a copy of row i across all columns.
func (t *Table) Row(i int) []Value {
	row := make([]Value, len(t.cols))
	for j, c := range t.cols {
		row[j] = c.Values[i]
	}
	return row
}

// NumericColumns returns the names of numeric columns in table order.
func (t *Table) NumericColumns() []string {
	var names []string
	for _, c := range t.cols {
		if c.IsNumeric() {
			names = append(names, c.Name)
		}
	}
	return names
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	out := New(t.rows)
	for _, c := range t.cols {
		vals := make([]Value, len(c.Values))
		copy(vals, c.Values)
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, &Column{Name: c.Name, Values: vals})
	}
	return out
}

// RowKey returns a string identifying the full contents of row i.
// Two rows have the same key exactly when every cell is Equal.
func (t *Table) RowKey(i int) string {
	var b []byte
	for _, c := range t.cols {
		b = c.Values[i].appendKey(b)
	}
	return string(b)
}

// DuplicateCount returns the number of rows equal to an earlier row.
func (t *Table) DuplicateCount() int {
	seen := make(map[string]struct{}, t.rows)
	dups := 0
	for i := range t.rows {
		key := t.RowKey(i)
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

// DropDuplicates removes rows equal to an earlier row, keeping the first
// occurrence, and returns the number removed.
func (t *Table) DropDuplicates() int {
	seen := make(map[string]struct{}, t.rows)
	keep := make([]int, 0, t.rows)
	for i := range t.rows {
		key := t.RowKey(i)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keep = append(keep, i)
	}

	removed := t.rows - len(keep)
	if removed == 0 {
		return 0
	}
	for _, c := range t.cols {
		vals := make([]Value, len(keep))
		for j, i := range keep {
			vals[j] = c.Values[i]
		}
		c.Values = vals
	}
	t.rows = len(keep)
	return removed
}
