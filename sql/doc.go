// Package sql provides the SQL text handling DataBass needs without running
// a full SQL parser.
//
// The lexer tokenizes statements the way SQLite, MySQL and DuckDB write them,
// including quoted identifiers and comments. On top of it the package offers:
//
//   - ReturnsRows, which decides whether a raw statement yields a result set
//   - ParseCreateTable, which reads the column names and primary key out of
//     the creation text a store reports for a table
//   - IsIdentifier, IsColumnType, IsColumnExtra and IsDefaultLiteral, the
//     allow-lists applied to every name and declaration before it is rendered
//     into a statement
//
// Example:
//
//	stmt, err := sql.ParseCreateTable("CREATE TABLE t (a INT, b TEXT, PRIMARY KEY (a, b))")
//	// stmt.PrimaryKeys == []string{"a", "b"}
package sql
