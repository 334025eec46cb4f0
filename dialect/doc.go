/*
Package dialect opens the backing store and reads its catalog.

A Dialect knows three things about a store: how to list its tables,
columns and primary keys; how to quote identifiers; and which ALTER
TABLE forms it accepts. Statement text itself is shared.

Stores:

  - sqlite (default): modernc.org/sqlite, or mattn/go-sqlite3 with -tags cgo_sqlite
  - mysql, mariadb: go-sql-driver/mysql
  - duckdb: duckdb-go, with -tags duckdb

Example:

	db, d, err := dialect.Open(dialect.Options{Dialect: "sqlite", Path: "bass.db"})
	if err != nil {
		return err
	}
	tables, err := d.Tables(ctx, db)
*/
package dialect
