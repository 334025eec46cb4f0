package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/LordWolfenstein/databass/core"
	sqltext "github.com/LordWolfenstein/databass/sql"
)

// Execute runs raw SQL. Statements that return rows yield a QueryResult;
// everything else yields a CommitResult. Nothing here is validated: it is
// the escape hatch for what structured requests cannot express.
func (engine *Engine) Execute(ctx context.Context, text string, args ...any) (Result, error) {
	return engine.run(ctx, Statement{Text: text, Args: args, Query: sqltext.ReturnsRows(text)})
}

// run executes one statement. Driver failures, and panics raised inside the
// driver, come back as *core.DriverError.
func (engine *Engine) run(ctx context.Context, statement Statement) (result Result, err error) {
	startTime := time.Now()
	logger := engine.log.WithField("statement", statement.Text)

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &core.DriverError{Statement: statement.Text, Err: fmt.Errorf("driver panic: %v", r)}
		}
		if err != nil {
			logger.WithError(err).Debug("statement failed")
		}
	}()

	logger.WithField("args", len(statement.Args)+len(statement.Batch)).Debug("executing statement")

	switch {
	case statement.Query:
		rows, err := engine.conn.QueryContext(ctx, statement.Text, statement.Args...)
		if err != nil {
			return nil, &core.DriverError{Statement: statement.Text, Err: err}
		}
		columns, data, err := scanRows(rows)
		if err != nil {
			return nil, &core.DriverError{Statement: statement.Text, Err: err}
		}
		return QueryResult{
			Columns:     columns,
			Rows:        data,
			RecordsRead: len(data),
			Elapsed:     time.Since(startTime),
			Statements:  1,
		}, nil

	case len(statement.Batch) > 0:
		var affected int64
		err := engine.inTx(ctx, func(tx *Engine) error {
			for _, args := range statement.Batch {
				res, err := tx.conn.ExecContext(ctx, statement.Text, args...)
				if err != nil {
					return &core.DriverError{Statement: statement.Text, Err: err}
				}
				affected += rowsAffected(res)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		return CommitResult{
			RowsAffected: affected,
			Elapsed:      time.Since(startTime),
			Statements:   len(statement.Batch),
		}, nil

	default:
		res, err := engine.conn.ExecContext(ctx, statement.Text, statement.Args...)
		if err != nil {
			return nil, &core.DriverError{Statement: statement.Text, Err: err}
		}
		return CommitResult{
			RowsAffected: rowsAffected(res),
			Elapsed:      time.Since(startTime),
			Statements:   1,
		}, nil
	}
}

// runAll executes statements in order, in one transaction when there is more than one.
func (engine *Engine) runAll(ctx context.Context, statements []Statement) (CommitResult, error) {
	startTime := time.Now()
	var total CommitResult

	exec := func(e *Engine) error {
		for _, statement := range statements {
			result, err := e.run(ctx, statement)
			if err != nil {
				return err
			}
			if commit, ok := result.(CommitResult); ok {
				total.RowsAffected += commit.RowsAffected
				total.Statements += commit.Statements
			}
		}
		return nil
	}

	var err error
	if len(statements) > 1 {
		err = engine.inTx(ctx, exec)
	} else {
		err = exec(engine)
	}
	if err != nil {
		return CommitResult{}, err
	}

	total.Elapsed = time.Since(startTime)
	return total, nil
}

func (engine *Engine) query(ctx context.Context, statement Statement) (QueryResult, error) {
	result, err := engine.run(ctx, statement)
	if err != nil {
		return QueryResult{}, err
	}
	return result.(QueryResult), nil
}

func (engine *Engine) commit(ctx context.Context, statement Statement) (CommitResult, error) {
	result, err := engine.run(ctx, statement)
	if err != nil {
		return CommitResult{}, err
	}
	return result.(CommitResult), nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func scanRows(rows *sql.Rows) ([]string, []core.Row, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var data []core.Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, nil, err
		}

		row := make(core.Row, len(columns))
		for i, column := range columns {
			row[column] = scannedValue(values[i])
		}
		data = append(data, row)
	}
	return columns, data, rows.Err()
}

// scannedValue turns driver byte slices into strings.
func scannedValue(value any) any {
	if b, ok := value.([]byte); ok {
		return string(b)
	}
	return value
}
