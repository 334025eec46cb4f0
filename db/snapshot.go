package db

import (
	"context"
	"time"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/op"
)

// Snapshot builds a feed that recreates the named tables, or every table
// when none are named: one Create for all schemas followed by one Insert
// per non-empty table.
func (engine *Engine) Snapshot(ctx context.Context, tables ...string) (op.Feed, error) {
	if len(tables) == 0 {
		var err error
		if tables, err = engine.ListTables(ctx); err != nil {
			return nil, err
		}
	}

	var (
		configs op.TableConfigs
		inserts op.Feed
	)
	for _, table := range tables {
		schema, err := engine.Schema(ctx, table)
		if err != nil {
			return nil, err
		}
		configs = append(configs, op.TableConfig{Name: table, Columns: schema.Columns})

		result, err := engine.Select(ctx, SelectRequest{Table: table})
		if err != nil {
			return nil, err
		}
		if len(result.Rows) == 0 {
			continue
		}

		rows := make([]core.Row, len(result.Rows))
		for i, row := range result.Rows {
			rows[i] = portableRow(row)
		}
		inserts = append(inserts, op.NewInsert(table, rows...))
	}

	if len(configs) == 0 {
		return op.Feed{}, nil
	}
	return append(op.Feed{op.Create{TableConfigs: configs}}, inserts...), nil
}

// portableRow turns driver-specific values into ones every store accepts.
func portableRow(row core.Row) core.Row {
	portable := make(core.Row, len(row))
	for column, value := range row {
		if t, ok := value.(time.Time); ok {
			portable[column] = t.UTC().Format("2006-01-02 15:04:05")
			continue
		}
		portable[column] = value
	}
	return portable
}
