package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copier is satisfied by both a Pool and a pgx.Tx.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
// The table name may be schema-qualified.
func CopyFrom(ctx context.Context, c Copier, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := c.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// ColumnDef is one column of a created table.
type ColumnDef struct {
	Name string
	Type string // SQL type, e.g. "double precision"
}

// TableLoad describes a table to create and fill in one transaction.
type TableLoad struct {
	Table    string
	Columns  []ColumnDef
	Truncate bool // empty the table before copying
}

// Load creates the table if needed, optionally truncates it, and copies
// rows into it. All steps share one transaction.
func Load(ctx context.Context, pool Pool, tl TableLoad, rows [][]any) (int64, error) {
	if len(tl.Columns) == 0 {
		return 0, eris.New("db: load: no columns specified")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: load: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, CreateTableSQL(tl.Table, tl.Columns)); err != nil {
		return 0, eris.Wrapf(err, "db: load: create table %s", tl.Table)
	}
	if tl.Truncate {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE "+Identifier(tl.Table).Sanitize()); err != nil {
			return 0, eris.Wrapf(err, "db: load: truncate %s", tl.Table)
		}
	}

	names := make([]string, len(tl.Columns))
	for i, c := range tl.Columns {
		names[i] = c.Name
	}
	n, err := CopyFrom(ctx, tx, tl.Table, names, rows)
	if err != nil {
		return 0, eris.Wrap(err, "db: load")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: load: commit tx")
	}
	return n, nil
}

// CreateTableSQL renders CREATE TABLE IF NOT EXISTS with quoted names.
func CreateTableSQL(table string, cols []ColumnDef) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = fmt.Sprintf("%s %s", pgx.Identifier{c.Name}.Sanitize(), c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", Identifier(table).Sanitize(), strings.Join(defs, ", "))
}

// Identifier splits a possibly schema-qualified name like "audit.encounters".
func Identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}
