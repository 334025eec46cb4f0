//go:build !cgo_sqlite

package dialect

import (
	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"
