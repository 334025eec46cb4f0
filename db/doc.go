// Package db provides the execution engine for DataBass.
//
// The Engine type is the main entry point. It introspects the live schema,
// compiles structured requests into parameterized SQL and replays feeds.
//
// # Engine Usage
//
//	store, d, err := dialect.Open(dialect.Options{Dialect: "sqlite", Path: "data.db"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	engine := db.NewEngine(store, d, identity, db.Options{})
//	result, err := engine.Select(ctx, db.SelectRequest{
//	    Table: "users",
//	    Where: core.Condition{"id": 1},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result.Display(os.Stdout)
//
// # Feeds
//
// ApplyFeed and ApplyWire replay a feed under a Policy and return a Report
// with one Outcome per operation that ran. With a journal configured every
// applied feed is also committed to it.
//
// # Result Types
//
// There are two result types:
//   - QueryResult: Returned by Select, Distinct and row-returning raw SQL
//   - CommitResult: Returned by Insert, Update, Delete, Create, AlterTable and Drop
package db
