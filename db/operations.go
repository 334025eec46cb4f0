package db

import (
	"context"
	"fmt"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/op"
)

func (engine *Engine) Name(ctx context.Context) (string, error) {
	return engine.Introspector().Name(ctx)
}

func (engine *Engine) ListTables(ctx context.Context) ([]string, error) {
	return engine.Introspector().ListTables(ctx)
}

func (engine *Engine) HasTable(ctx context.Context, table string) (bool, error) {
	return engine.Introspector().HasTable(ctx, table)
}

func (engine *Engine) Columns(ctx context.Context, table string) ([]core.ColumnSpec, error) {
	return engine.Introspector().Columns(ctx, table)
}

func (engine *Engine) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	return engine.Introspector().PrimaryKeys(ctx, table)
}

func (engine *Engine) Schema(ctx context.Context, table string) (core.TableSchema, error) {
	return engine.Introspector().Schema(ctx, table)
}

func (engine *Engine) CreateStatement(ctx context.Context, table string) (string, error) {
	return engine.Introspector().CreateStatement(ctx, table)
}

func (engine *Engine) Select(ctx context.Context, request SelectRequest) (QueryResult, error) {
	statement, err := engine.Builder().Select(ctx, request)
	if err != nil {
		return QueryResult{}, err
	}
	return engine.query(ctx, statement)
}

// Distinct returns the distinct combinations of columns in table.
func (engine *Engine) Distinct(ctx context.Context, table string, columns ...string) (QueryResult, error) {
	return engine.Select(ctx, SelectRequest{Table: table, Columns: columns, Distinct: true})
}

// Count returns the number of rows matching the conditions.
func (engine *Engine) Count(ctx context.Context, table string, where, whereNot core.Condition) (int64, error) {
	statement, err := engine.Builder().Count(ctx, table, where, whereNot)
	if err != nil {
		return 0, err
	}
	result, err := engine.query(ctx, statement)
	if err != nil {
		return 0, err
	}
	if len(result.Rows) != 1 || len(result.Columns) != 1 {
		return 0, &core.DriverError{Statement: statement.Text, Err: fmt.Errorf("unexpected count result")}
	}
	return toInt64(result.Rows[0][result.Columns[0]])
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		var n int64
		_, err := fmt.Sscan(v, &n)
		return n, err
	default:
		return 0, fmt.Errorf("cannot read %T as a count", value)
	}
}

func (engine *Engine) Insert(ctx context.Context, table string, rows ...core.Row) (CommitResult, error) {
	statement, err := engine.Builder().Insert(ctx, table, rows)
	if err != nil {
		return CommitResult{}, err
	}
	result, err := engine.commit(ctx, statement)
	if err != nil {
		return CommitResult{}, err
	}
	result.RecordsWritten = len(rows)
	return result, nil
}

func (engine *Engine) Update(ctx context.Context, table string, data core.Row, where, whereNot core.Condition) (CommitResult, error) {
	statement, err := engine.Builder().Update(ctx, table, data, where, whereNot)
	if err != nil {
		return CommitResult{}, err
	}
	result, err := engine.commit(ctx, statement)
	if err != nil {
		return CommitResult{}, err
	}
	result.RecordsUpdated = int(result.RowsAffected)
	return result, nil
}

func (engine *Engine) Delete(ctx context.Context, table string, where, whereNot core.Condition) (CommitResult, error) {
	statement, err := engine.Builder().Delete(ctx, table, where, whereNot)
	if err != nil {
		return CommitResult{}, err
	}
	result, err := engine.commit(ctx, statement)
	if err != nil {
		return CommitResult{}, err
	}
	result.RecordsDeleted = int(result.RowsAffected)
	return result, nil
}

// Create creates every configured table in order.
func (engine *Engine) Create(ctx context.Context, configs op.TableConfigs) (CommitResult, error) {
	if len(configs) == 0 {
		return CommitResult{}, core.NewValidationError("tableconfigs", "no tables to create")
	}

	builder := engine.Builder()
	statements := make([]Statement, len(configs))
	for i, config := range configs {
		statement, err := builder.CreateTable(config)
		if err != nil {
			return CommitResult{}, err
		}
		statements[i] = statement
	}

	result, err := engine.runAll(ctx, statements)
	if err != nil {
		return CommitResult{}, err
	}
	result.TablesCreated = len(configs)
	return result, nil
}

func (engine *Engine) AlterTable(ctx context.Context, table string, add []core.ColumnSpec, drop []string) (CommitResult, error) {
	statements, err := engine.Builder().AlterTable(ctx, table, add, drop)
	if err != nil {
		return CommitResult{}, err
	}
	if len(statements) == 0 {
		return CommitResult{}, nil
	}

	result, err := engine.runAll(ctx, statements)
	if err != nil {
		return CommitResult{}, err
	}
	result.TablesAltered = 1
	return result, nil
}

func (engine *Engine) Drop(ctx context.Context, table string) (CommitResult, error) {
	statement, err := engine.Builder().DropTable(ctx, table)
	if err != nil {
		return CommitResult{}, err
	}
	result, err := engine.commit(ctx, statement)
	if err != nil {
		return CommitResult{}, err
	}
	result.TablesDeleted = 1
	return result, nil
}

// Apply runs one operation through the same path as the direct calls.
func (engine *Engine) Apply(ctx context.Context, operation op.Operation) (Result, error) {
	var (
		result Result
		err    error
	)

	switch o := operation.(type) {
	case op.Create:
		result, err = engine.Create(ctx, o.TableConfigs)
	case op.AlterTable:
		result, err = engine.AlterTable(ctx, o.Table, o.Add, o.Drop)
	case op.Drop:
		result, err = engine.Drop(ctx, o.Table)
	case op.Insert:
		result, err = engine.Insert(ctx, o.Table, o.Rows...)
	case op.Update:
		result, err = engine.Update(ctx, o.Table, o.Data, o.Where, o.WhereNot)
	case op.Delete:
		result, err = engine.Delete(ctx, o.Table, o.Where, o.WhereNot)
	default:
		err = core.NewValidationError("operation", "unsupported operation %T", operation)
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}
