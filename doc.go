// Package databass provides a schema-aware data access layer over relational
// stores, with a portable operation feed for replaying changes elsewhere.
//
// DataBass introspects the live schema (tables, columns, primary keys),
// checks every structured request against it and compiles the request into
// parameterized SQL. Changes can be expressed as a feed: an ordered list of
// create, alter table, drop, insert, update and delete operations with a
// JSON wire form that another store can replay.
//
// # Quick Start
//
// Open an in-memory SQLite store:
//
//	instance, _ := databass.Open(config.Default())
//	defer instance.Close()
//	engine := instance.Engine(core.Identity{Name: "App", Email: "app@example.com"})
//
//	engine.Create(ctx, op.TableConfigs{{Name: "users", Columns: []core.ColumnSpec{
//	    {Field: "id", Type: "int(11)", Null: "NO", Key: "PRI"},
//	    {Field: "name", Type: "text"},
//	}}})
//	engine.Insert(ctx, "users", core.Row{"id": 1, "name": "Alice"})
//
//	result, _ := engine.Select(ctx, db.SelectRequest{Table: "users"})
//	result.Display(os.Stdout)
//
// # Feeds
//
//	report, err := engine.ApplyWire(ctx, `{"bassfeed": [...]}`, db.Atomic)
//
// # Supported Stores
//
//   - SQLite (pure Go by default, cgo with -tags cgo_sqlite)
//   - MySQL and MariaDB
//   - DuckDB (with -tags duckdb)
package databass
