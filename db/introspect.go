package db

import (
	"context"
	"fmt"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/dialect"
	"github.com/LordWolfenstein/databass/sql"
)

// Introspector derives table schemas from the store on every call.
type Introspector struct {
	q         dialect.Querier
	dialect   dialect.Dialect
	keySource PrimaryKeySource
}

func catalogError(err error) error {
	return &core.DriverError{Err: err}
}

// Name returns the name of the current database.
func (in *Introspector) Name(ctx context.Context) (string, error) {
	name, err := in.dialect.DatabaseName(ctx, in.q)
	if err != nil {
		return "", catalogError(err)
	}
	return name, nil
}

func (in *Introspector) ListTables(ctx context.Context) ([]string, error) {
	tables, err := in.dialect.Tables(ctx, in.q)
	if err != nil {
		return nil, catalogError(err)
	}
	return tables, nil
}

func (in *Introspector) HasTable(ctx context.Context, table string) (bool, error) {
	tables, err := in.ListTables(ctx)
	if err != nil {
		return false, err
	}
	for _, name := range tables {
		if name == table {
			return true, nil
		}
	}
	return false, nil
}

// Columns returns the table's columns in declaration order, with Key set
// from the configured primary key source.
func (in *Introspector) Columns(ctx context.Context, table string) ([]core.ColumnSpec, error) {
	schema, err := in.Schema(ctx, table)
	if err != nil {
		return nil, err
	}
	return schema.Columns, nil
}

func (in *Introspector) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	schema, err := in.Schema(ctx, table)
	if err != nil {
		return nil, err
	}
	return schema.PrimaryKeys, nil
}

// Schema reads the columns and the primary key of table.
func (in *Introspector) Schema(ctx context.Context, table string) (core.TableSchema, error) {
	columns, err := in.dialect.Columns(ctx, in.q, table)
	if err != nil {
		return core.TableSchema{}, catalogError(err)
	}
	if len(columns) == 0 {
		return core.TableSchema{}, core.NewTableNotFound(table)
	}

	var keys []string
	if in.keySource == KeysFromDDL {
		keys, err = in.keysFromDDL(ctx, table)
		if err != nil {
			return core.TableSchema{}, err
		}
		for i := range columns {
			columns[i].Key = ""
		}
		markKeys(columns, keys)
	} else {
		keys, err = in.dialect.PrimaryKeys(ctx, in.q, table)
		if err != nil {
			return core.TableSchema{}, catalogError(err)
		}
	}

	return core.TableSchema{Name: table, Columns: columns, PrimaryKeys: keys}, nil
}

func (in *Introspector) keysFromDDL(ctx context.Context, table string) ([]string, error) {
	text, err := in.CreateStatement(ctx, table)
	if err != nil {
		return nil, err
	}

	statement, err := sql.ParseCreateTable(text)
	if err != nil {
		return nil, &core.SchemaError{Table: table, Err: fmt.Errorf("cannot read primary key: %w", err)}
	}
	return statement.PrimaryKeys, nil
}

func markKeys(columns []core.ColumnSpec, keys []string) {
	for i := range columns {
		for _, key := range keys {
			if columns[i].Field == key {
				columns[i].Key = core.PrimaryKeyMarker
			}
		}
	}
}

// CreateStatement returns the store's DDL text for the table.
func (in *Introspector) CreateStatement(ctx context.Context, table string) (string, error) {
	text, err := in.dialect.CreateStatement(ctx, in.q, table)
	if err != nil {
		return "", catalogError(err)
	}
	if text == "" {
		return "", core.NewTableNotFound(table)
	}
	return text, nil
}
