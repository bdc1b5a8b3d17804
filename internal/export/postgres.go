package export

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/readmit-dqi/internal/db"
	"github.com/sells-group/readmit-dqi/internal/table"
)

// PostgresColumns maps table columns to SQL columns: double precision
// for numeric columns and text otherwise.
func PostgresColumns(t *table.Table) []db.ColumnDef {
	defs := make([]db.ColumnDef, t.NumCols())
	for i, c := range t.Columns() {
		typ := "text"
		if c.IsNumeric() {
			typ = "double precision"
		}
		defs[i] = db.ColumnDef{Name: c.Name, Type: typ}
	}
	return defs
}

// CopyToPostgres creates tableName if needed and bulk-loads t into it
// with COPY. With replace the table is truncated first.
func CopyToPostgres(ctx context.Context, pool db.Pool, tableName string, t *table.Table, replace bool) (int64, error) {
	if t.NumCols() == 0 {
		return 0, eris.New("export: table has no columns")
	}
	cols := t.Columns()
	rows := make([][]any, t.NumRows())
	for i := range rows {
		row := make([]any, len(cols))
		for j, c := range cols {
			row[j] = sqlValue(c.Values[i])
		}
		rows[i] = row
	}

	n, err := db.Load(ctx, pool, db.TableLoad{
		Table:    tableName,
		Columns:  PostgresColumns(t),
		Truncate: replace,
	}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "export: copy to %s", tableName)
	}
	zap.L().Info("copied table to postgres",
		zap.String("component", "export"),
		zap.String("table", tableName),
		zap.Int64("rows", n),
	)
	return n, nil
}

func sqlValue(v table.Value) any {
	if f, ok := v.Float(); ok {
		return f
	}
	if s, ok := v.Str(); ok {
		return s
	}
	return nil
}
