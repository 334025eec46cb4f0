//go:build duckdb

package dialect

import (
	_ "github.com/duckdb/duckdb-go/v2"
)

const duckdbAvailable = true
