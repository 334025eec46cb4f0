// Package core provides the types shared by every DataBass package.
//
// # Schema
//
// ColumnSpec mirrors the rows MariaDB returns for DESCRIBE, so a table
// description read from one store can be fed straight into a create
// operation on another:
//
//	columns := []core.ColumnSpec{
//	    {Field: "id", Type: "int(11)", Null: "NO", Key: "PRI", Default: "None", Extra: "auto_increment"},
//	    {Field: "text", Type: "text", Null: "YES", Default: "'Nothing!'"},
//	}
//
// # Rows and Conditions
//
// Row maps column names to values. Condition maps column names to the value
// each must equal (where) or must not equal (wherenot). Conditions are always
// conjoined with AND.
//
// # Errors
//
// Every failure surfaced by DataBass is one of SchemaError, ValidationError,
// InjectionGuardError or DriverError. Use errors.Is with the matching
// sentinel, or KindOf, to branch on the kind:
//
//	if errors.Is(err, core.ErrSchema) {
//	    // table or column missing
//	}
package core
