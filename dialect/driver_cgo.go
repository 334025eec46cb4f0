//go:build cgo_sqlite

package dialect

import (
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver
)

const sqliteDriverName = "sqlite3"
