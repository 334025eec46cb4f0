package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/LordWolfenstein/databass/core"
)

var (
	ErrUnknownDialect = errors.New("unknown dialect")
	ErrNotCompiled    = errors.New("driver not compiled in")
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect holds what differs between stores: catalog queries, identifier
// quoting and a few rendering rules. Everything else is shared SQL.
type Dialect interface {
	Name() string
	DriverName() string
	QuoteIdent(name string) string

	DatabaseName(ctx context.Context, q Querier) (string, error)
	Tables(ctx context.Context, q Querier) ([]string, error)
	// Columns returns no columns, and no error, when the table does not exist.
	Columns(ctx context.Context, q Querier, table string) ([]core.ColumnSpec, error)
	// PrimaryKeys reads the key from the catalog, in key order.
	PrimaryKeys(ctx context.Context, q Querier, table string) ([]string, error)
	// CreateStatement returns the table's creation text, or "" when the table does not exist.
	CreateStatement(ctx context.Context, q Querier, table string) (string, error)

	// CombinedAlter reports whether several ALTER TABLE actions fit in one statement.
	CombinedAlter() bool
	// AddColumnIfNotExists reports whether ADD COLUMN IF NOT EXISTS is understood.
	AddColumnIfNotExists() bool
	// ColumnExtra maps a DESCRIBE Extra value to what the store accepts.
	ColumnExtra(extra string) string
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite{}, nil
	case "mysql":
		return MySQL{}, nil
	case "mariadb":
		return MySQL{MariaDB: true}, nil
	case "duckdb":
		return DuckDB{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, name)
	}
}

// Options selects and addresses a store.
type Options struct {
	Dialect      string
	DSN          string
	Path         string
	User         string
	Password     string
	Host         string
	Port         int
	Database     string
	MaxOpenConns int
}

// Open opens a connection pool for the configured store.
func Open(opts Options) (*sql.DB, Dialect, error) {
	d, err := Lookup(opts.Dialect)
	if err != nil {
		return nil, nil, err
	}

	dsn, err := dataSourceName(d, opts)
	if err != nil {
		return nil, nil, err
	}

	if d.Name() == "duckdb" && !duckdbAvailable {
		return nil, nil, fmt.Errorf("%w: duckdb (build with -tags duckdb)", ErrNotCompiled)
	}

	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", d.Name(), err)
	}

	switch {
	case opts.MaxOpenConns > 0:
		db.SetMaxOpenConns(opts.MaxOpenConns)
	case d.Name() == "sqlite":
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
	}

	return db, d, nil
}

func dataSourceName(d Dialect, opts Options) (string, error) {
	if opts.DSN != "" {
		return opts.DSN, nil
	}

	switch d.Name() {
	case "sqlite":
		if opts.Path == "" {
			return ":memory:", nil
		}
		return opts.Path, nil
	case "duckdb":
		return opts.Path, nil
	case "mysql", "mariadb":
		return mysqlDSN(opts), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDialect, d.Name())
	}
}

// quote wraps name in the given quote character, doubling any embedded quote.
func quote(name string, q string) string {
	return q + strings.ReplaceAll(name, q, q+q) + q
}

func queryStrings(ctx context.Context, q Querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value sql.NullString
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value.String)
	}
	return values, rows.Err()
}

// defaultText renders a catalog default the way DESCRIBE output does.
func defaultText(value sql.NullString) string {
	if !value.Valid {
		return core.NoDefault
	}
	return value.String
}

func nullText(nullable bool) string {
	if nullable {
		return "YES"
	}
	return "NO"
}

// markPrimary sets Key to PRI on the named columns.
func markPrimary(columns []core.ColumnSpec, keys []string) {
	for i := range columns {
		for _, key := range keys {
			if columns[i].Field == key {
				columns[i].Key = core.PrimaryKeyMarker
			}
		}
	}
}
