package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/LordWolfenstein/databass/core"
	log "github.com/sirupsen/logrus"
)

// UpsertMode selects how an existing row is rewritten.
type UpsertMode int

const (
	// UpsertMerge updates the mapped columns in place. Unmapped columns and
	// store-generated values are kept.
	UpsertMerge UpsertMode = iota
	// UpsertReplace deletes the matching rows and inserts the mapping. Unmapped
	// columns fall back to their defaults.
	UpsertReplace
)

func (mode UpsertMode) String() string {
	if mode == UpsertReplace {
		return "replace"
	}
	return "merge"
}

func ParseUpsertMode(name string) (UpsertMode, error) {
	switch strings.ToLower(name) {
	case "", "merge":
		return UpsertMerge, nil
	case "replace":
		return UpsertReplace, nil
	default:
		return UpsertMerge, fmt.Errorf("unknown upsert mode: %s", name)
	}
}

// UpsertOutcome is the result of one row of UpsertMany.
type UpsertOutcome struct {
	Index  int
	Result CommitResult
	Err    error
}

// Upsert inserts row, or rewrites the rows sharing its primary-key values.
// Only key columns present in row identify it; a row carrying none of them
// is always inserted. The check and the write share one transaction.
func (engine *Engine) Upsert(ctx context.Context, table string, row core.Row) (CommitResult, error) {
	var result CommitResult
	err := engine.inTx(ctx, func(tx *Engine) error {
		var err error
		result, err = tx.upsert(ctx, table, row)
		return err
	})
	if err != nil {
		return CommitResult{}, err
	}
	return result, nil
}

func (engine *Engine) upsert(ctx context.Context, table string, row core.Row) (CommitResult, error) {
	keys, err := engine.PrimaryKeys(ctx, table)
	if err != nil {
		return CommitResult{}, err
	}

	identity := core.Condition{}
	for _, key := range keys {
		if value, ok := row[key]; ok {
			identity[key] = value
		}
	}

	logger := engine.log.WithFields(log.Fields{"table": table, "mode": engine.options.Upsert.String()})

	if len(identity) == 0 {
		logger.Debug("upsert without key columns, inserting")
		return engine.Insert(ctx, table, row)
	}

	count, err := engine.Count(ctx, table, identity, nil)
	if err != nil {
		return CommitResult{}, err
	}
	if count == 0 {
		return engine.Insert(ctx, table, row)
	}

	switch engine.options.Upsert {
	case UpsertReplace:
		deleted, err := engine.Delete(ctx, table, identity, nil)
		if err != nil {
			return CommitResult{}, err
		}
		inserted, err := engine.Insert(ctx, table, row)
		if err != nil {
			return CommitResult{}, err
		}
		inserted.RecordsDeleted = deleted.RecordsDeleted
		inserted.RowsAffected += deleted.RowsAffected
		inserted.Statements += deleted.Statements
		inserted.Elapsed += deleted.Elapsed
		return inserted, nil

	default:
		data := core.Row{}
		for column, value := range row {
			if _, isKey := identity[column]; !isKey {
				data[column] = value
			}
		}
		if len(data) == 0 {
			// Only key columns were given and the row exists: nothing to change.
			logger.Debug("upsert found nothing to update")
			return CommitResult{}, nil
		}
		return engine.Update(ctx, table, data, identity, nil)
	}
}

// UpsertMany upserts each row on its own, in order. A failing row does not
// undo the rows before it.
func (engine *Engine) UpsertMany(ctx context.Context, table string, rows []core.Row) []UpsertOutcome {
	outcomes := make([]UpsertOutcome, len(rows))
	for i, row := range rows {
		result, err := engine.Upsert(ctx, table, row)
		outcomes[i] = UpsertOutcome{Index: i, Result: result, Err: err}
	}
	return outcomes
}
