package dialect

import (
	"context"
	"database/sql"
	"sort"

	"github.com/LordWolfenstein/databass/core"
)

// SQLite reads its catalog from sqlite_master and pragma_table_info.
type SQLite struct{}

func (SQLite) Name() string                  { return "sqlite" }
func (SQLite) DriverName() string            { return sqliteDriverName }
func (SQLite) QuoteIdent(name string) string { return quote(name, `"`) }
func (SQLite) CombinedAlter() bool           { return false }
func (SQLite) AddColumnIfNotExists() bool    { return false }

// ColumnExtra drops auto_increment: an INTEGER primary key already aliases the rowid.
func (SQLite) ColumnExtra(extra string) string {
	return stripAutoIncrement(extra)
}

func (SQLite) DatabaseName(ctx context.Context, q Querier) (string, error) {
	var file sql.NullString
	err := q.QueryRowContext(ctx, "SELECT file FROM pragma_database_list WHERE name = 'main'").Scan(&file)
	if err != nil {
		return "", err
	}
	if file.String == "" {
		return "main", nil
	}
	return file.String, nil
}

func (SQLite) Tables(ctx context.Context, q Querier) ([]string, error) {
	return queryStrings(ctx, q,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
}

type sqliteColumn struct {
	spec core.ColumnSpec
	pk   int64
}

func (SQLite) tableInfo(ctx context.Context, q Querier, table string) ([]sqliteColumn, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []sqliteColumn
	for rows.Next() {
		var (
			name, typ string
			notNull   int64
			dflt      sql.NullString
			pk        int64
		)
		if err := rows.Scan(&name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		column := sqliteColumn{
			spec: core.ColumnSpec{
				Field:   name,
				Type:    typ,
				Null:    nullText(notNull == 0),
				Default: defaultText(dflt),
			},
			pk: pk,
		}
		if pk > 0 {
			column.spec.Key = core.PrimaryKeyMarker
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

func (d SQLite) Columns(ctx context.Context, q Querier, table string) ([]core.ColumnSpec, error) {
	info, err := d.tableInfo(ctx, q, table)
	if err != nil {
		return nil, err
	}
	columns := make([]core.ColumnSpec, len(info))
	for i, column := range info {
		columns[i] = column.spec
	}
	return columns, nil
}

// PrimaryKeys orders the key by the pk ordinal, which follows the PRIMARY KEY clause.
func (d SQLite) PrimaryKeys(ctx context.Context, q Querier, table string) ([]string, error) {
	info, err := d.tableInfo(ctx, q, table)
	if err != nil {
		return nil, err
	}

	var keyed []sqliteColumn
	for _, column := range info {
		if column.pk > 0 {
			keyed = append(keyed, column)
		}
	}
	sort.Slice(keyed, func(i, j int) bool { return keyed[i].pk < keyed[j].pk })

	keys := make([]string, len(keyed))
	for i, column := range keyed {
		keys[i] = column.spec.Field
	}
	return keys, nil
}

func (SQLite) CreateStatement(ctx context.Context, q Querier, table string) (string, error) {
	var text sql.NullString
	err := q.QueryRowContext(ctx, "SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return text.String, err
}
