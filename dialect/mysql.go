package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"

	"github.com/LordWolfenstein/databass/core"
	"github.com/go-sql-driver/mysql"
)

// MySQL reads its catalog from information_schema. MariaDB additionally
// understands ADD COLUMN IF NOT EXISTS.
type MySQL struct {
	MariaDB bool
}

func (d MySQL) Name() string {
	if d.MariaDB {
		return "mariadb"
	}
	return "mysql"
}

func (MySQL) DriverName() string              { return "mysql" }
func (MySQL) QuoteIdent(name string) string   { return quote(name, "`") }
func (MySQL) CombinedAlter() bool             { return true }
func (d MySQL) AddColumnIfNotExists() bool    { return d.MariaDB }
func (MySQL) ColumnExtra(extra string) string { return extra }

func mysqlDSN(opts Options) string {
	cfg := mysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := opts.Port
	if port == 0 {
		port = 3306
	}
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	cfg.DBName = opts.Database
	return cfg.FormatDSN()
}

func (MySQL) DatabaseName(ctx context.Context, q Querier) (string, error) {
	var name sql.NullString
	if err := q.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&name); err != nil {
		return "", err
	}
	return name.String, nil
}

func (MySQL) Tables(ctx context.Context, q Querier) ([]string, error) {
	return queryStrings(ctx, q,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name")
}

func (MySQL) Columns(ctx context.Context, q Querier, table string) ([]core.ColumnSpec, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT column_name, column_type, is_nullable, column_key, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var columns []core.ColumnSpec
	for rows.Next() {
		var (
			field, typ, null, key, extra sql.NullString
			dflt                         sql.NullString
		)
		if err := rows.Scan(&field, &typ, &null, &key, &dflt, &extra); err != nil {
			return nil, err
		}
		columns = append(columns, core.ColumnSpec{
			Field:   field.String,
			Type:    typ.String,
			Null:    null.String,
			Key:     key.String,
			Default: defaultText(dflt),
			Extra:   extra.String,
		})
	}
	return columns, rows.Err()
}

func (MySQL) PrimaryKeys(ctx context.Context, q Querier, table string) ([]string, error) {
	return queryStrings(ctx, q,
		`SELECT k.column_name
		FROM information_schema.key_column_usage k
		JOIN information_schema.table_constraints c
		  ON c.constraint_schema = k.constraint_schema
		 AND c.table_name = k.table_name
		 AND c.constraint_name = k.constraint_name
		WHERE c.constraint_type = 'PRIMARY KEY'
		  AND k.table_schema = DATABASE()
		  AND k.table_name = ?
		ORDER BY k.ordinal_position`, table)
}

func (d MySQL) CreateStatement(ctx context.Context, q Querier, table string) (string, error) {
	tables, err := d.Tables(ctx, q)
	if err != nil {
		return "", err
	}
	if !contains(tables, table) {
		return "", nil
	}

	var name, text string
	if err := q.QueryRowContext(ctx, fmt.Sprintf("SHOW CREATE TABLE %s", d.QuoteIdent(table))).Scan(&name, &text); err != nil {
		return "", err
	}
	return text, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
