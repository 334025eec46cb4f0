// Package op defines the structured operations DataBass executes and the feed
// format used to ship them to another database.
//
// # Operations
//
// An Operation is exactly one of Create, AlterTable, Drop, Insert, Update or
// Delete. Callers switch on the concrete type:
//
//	switch o := operation.(type) {
//	case op.Insert:
//	    // o.Table, o.Rows
//	case op.Delete:
//	    // o.Where, o.WhereNot
//	}
//
// # Feeds
//
// A Feed is an ordered list of operations. Encode renders it as wire text:
//
//	{"bassfeed": [{"operation": "insert", "table": "t", "data": [{"id": 1}]}]}
//
// and Decode turns wire text back into a Feed. Decode rejects any text
// containing a backtick before parsing it:
//
//	feed := op.Feed{
//	    op.NewCreate("t", core.ColumnSpec{Field: "id", Type: "int", Key: "PRI"}),
//	    op.NewInsert("t", core.Row{"id": 1}),
//	}
//	wire, err := op.Encode(feed)
//	...
//	decoded, err := op.Decode(wire)
//
// Digest returns a BLAKE3 digest of the wire text, used by the journal to
// recognise a feed it has already applied.
package op
