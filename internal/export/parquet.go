package export

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"

	"github.com/sells-group/readmit-dqi/internal/table"
)

// parquetFlushInterval is the number of rows buffered per row group.
const parquetFlushInterval = 100_000

// ParquetSchema builds an optional DOUBLE column for each numeric column
// and an optional UTF8 column for every other column.
func ParquetSchema(t *table.Table) *parquet.Schema {
	group := make(parquet.Group, t.NumCols())
	for _, c := range t.Columns() {
		if c.IsNumeric() {
			group[c.Name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		} else {
			group[c.Name] = parquet.Optional(parquet.String())
		}
	}
	return parquet.NewSchema("readmissions", group)
}

// WriteParquet writes t as Snappy-compressed Parquet and returns the
// number of rows written. Columns appear in the file in name order.
func WriteParquet(path string, t *table.Table) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrapf(err, "export: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s", path)
	}

	schema := ParquetSchema(t)
	w := parquet.NewWriter(f, schema, parquet.Compression(&parquet.Snappy))

	// Leaf column indexes follow the sorted field names.
	cols := append([]*table.Column(nil), t.Columns()...)
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	numeric := make([]bool, len(cols))
	for j, c := range cols {
		numeric[j] = c.IsNumeric()
	}

	batch := make([]parquet.Row, 0, min(t.NumRows(), parquetFlushInterval))
	written := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.WriteRows(batch); err != nil {
			return eris.Wrap(err, "export: write parquet rows")
		}
		written += len(batch)
		batch = batch[:0]
		return eris.Wrap(w.Flush(), "export: flush parquet")
	}

	for i := range t.NumRows() {
		row := make(parquet.Row, len(cols))
		for j, c := range cols {
			row[j] = parquetValue(c.Values[i], numeric[j], j)
		}
		batch = append(batch, row)
		if len(batch) == parquetFlushInterval {
			if err := flush(); err != nil {
				_ = f.Close()
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		_ = f.Close()
		return written, err
	}
	if err := w.Close(); err != nil {
		_ = f.Close()
		return written, eris.Wrap(err, "export: close parquet writer")
	}
	return written, eris.Wrapf(f.Close(), "export: close %s", path)
}

func parquetValue(v table.Value, numeric bool, col int) parquet.Value {
	if v.IsMissing() {
		return parquet.NullValue().Level(0, 0, col)
	}
	if numeric {
		f, _ := v.Float()
		return parquet.DoubleValue(f).Level(0, 1, col)
	}
	return parquet.ByteArrayValue([]byte(v.Text())).Level(0, 1, col)
}
