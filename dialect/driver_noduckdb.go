//go:build !duckdb

package dialect

// DuckDB needs cgo and a prebuilt library, so it is opt-in.
const duckdbAvailable = false
