package dialect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/LordWolfenstein/databass/core"
)

// DuckDB reads its catalog from information_schema in the current schema.
type DuckDB struct{}

func (DuckDB) Name() string                  { return "duckdb" }
func (DuckDB) DriverName() string            { return "duckdb" }
func (DuckDB) QuoteIdent(name string) string { return quote(name, `"`) }
func (DuckDB) CombinedAlter() bool           { return false }
func (DuckDB) AddColumnIfNotExists() bool    { return true }

// ColumnExtra drops auto_increment, which DuckDB expresses with sequences instead.
func (DuckDB) ColumnExtra(extra string) string {
	return stripAutoIncrement(extra)
}

func (DuckDB) DatabaseName(ctx context.Context, q Querier) (string, error) {
	var name string
	err := q.QueryRowContext(ctx, "SELECT current_database()").Scan(&name)
	return name, err
}

func (DuckDB) Tables(ctx context.Context, q Querier) ([]string, error) {
	return queryStrings(ctx, q,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name")
}

func (d DuckDB) Columns(ctx context.Context, q Querier, table string) ([]core.ColumnSpec, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []core.ColumnSpec
	for rows.Next() {
		var (
			field, typ, null string
			dflt             sql.NullString
		)
		if err := rows.Scan(&field, &typ, &null, &dflt); err != nil {
			return nil, err
		}
		columns = append(columns, core.ColumnSpec{
			Field:   field,
			Type:    typ,
			Null:    null,
			Default: defaultText(dflt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, nil
	}

	keys, err := d.PrimaryKeys(ctx, q, table)
	if err != nil {
		return nil, err
	}
	markPrimary(columns, keys)
	return columns, nil
}

func (DuckDB) PrimaryKeys(ctx context.Context, q Querier, table string) ([]string, error) {
	return queryStrings(ctx, q,
		`SELECT k.column_name
		FROM information_schema.key_column_usage k
		JOIN information_schema.table_constraints c
		  ON c.constraint_schema = k.constraint_schema
		 AND c.table_name = k.table_name
		 AND c.constraint_name = k.constraint_name
		WHERE c.constraint_type = 'PRIMARY KEY'
		  AND k.table_schema = current_schema()
		  AND k.table_name = ?
		ORDER BY k.ordinal_position`, table)
}

func (DuckDB) CreateStatement(ctx context.Context, q Querier, table string) (string, error) {
	var text sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT sql FROM duckdb_tables() WHERE schema_name = current_schema() AND table_name = ?", table).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return text.String, err
}

// stripAutoIncrement removes the auto_increment attribute from an Extra value.
func stripAutoIncrement(extra string) string {
	fields := strings.Fields(extra)
	kept := fields[:0]
	for _, field := range fields {
		if !strings.EqualFold(field, "auto_increment") && !strings.EqualFold(field, "autoincrement") {
			kept = append(kept, field)
		}
	}
	return strings.Join(kept, " ")
}
