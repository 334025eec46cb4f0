package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/dialect"
	"github.com/LordWolfenstein/databass/ps"
	log "github.com/sirupsen/logrus"
)

// PrimaryKeySource selects where primary keys are read from.
type PrimaryKeySource int

const (
	// KeysFromCatalog reads the store's constraint catalog.
	KeysFromCatalog PrimaryKeySource = iota
	// KeysFromDDL parses the table's CREATE TABLE text.
	KeysFromDDL
)

func (source PrimaryKeySource) String() string {
	if source == KeysFromDDL {
		return "ddl"
	}
	return "catalog"
}

func ParsePrimaryKeySource(name string) (PrimaryKeySource, error) {
	switch strings.ToLower(name) {
	case "", "catalog":
		return KeysFromCatalog, nil
	case "ddl":
		return KeysFromDDL, nil
	default:
		return KeysFromCatalog, fmt.Errorf("unknown primary key source: %s", name)
	}
}

// Options tune an Engine. The zero value reads keys from the catalog,
// merges on upsert and continues past failing feed operations.
type Options struct {
	PrimaryKeySource PrimaryKeySource
	Upsert           UpsertMode
	Policy           Policy
	// SkipDuplicates makes ApplyWire skip feeds whose digest is already journaled.
	SkipDuplicates bool
	Journal        *ps.Journal
	S3             *S3Config
	Logger         *log.Entry
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	dialect.Querier
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Engine struct {
	db       *sql.DB
	conn     execer
	tx       *sql.Tx
	dialect  dialect.Dialect
	identity core.Identity
	options  Options
	log      *log.Entry
}

func NewEngine(db *sql.DB, d dialect.Dialect, identity core.Identity, options Options) *Engine {
	logger := options.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Engine{
		db:       db,
		conn:     db,
		dialect:  d,
		identity: identity,
		options:  options,
		log:      logger.WithField("component", "engine"),
	}
}

func (engine *Engine) Dialect() dialect.Dialect {
	return engine.dialect
}

func (engine *Engine) Identity() core.Identity {
	return engine.identity
}

func (engine *Engine) Journal() *ps.Journal {
	return engine.options.Journal
}

// Introspector reads the schema through the engine's connection, so inside a
// transaction it sees the transaction's own DDL.
func (engine *Engine) Introspector() *Introspector {
	return &Introspector{
		q:         engine.conn,
		dialect:   engine.dialect,
		keySource: engine.options.PrimaryKeySource,
	}
}

func (engine *Engine) Builder() *Builder {
	return &Builder{
		introspector: engine.Introspector(),
		dialect:      engine.dialect,
	}
}

// WithUpsertMode returns a copy of the engine using mode for upserts.
func (engine *Engine) WithUpsertMode(mode UpsertMode) *Engine {
	copied := *engine
	copied.options.Upsert = mode
	return &copied
}

// InTransaction reports whether the engine is bound to a transaction.
func (engine *Engine) InTransaction() bool {
	return engine.tx != nil
}

// inTx runs fn on a transaction-bound copy of the engine and commits when fn
// succeeds. An engine already inside a transaction runs fn directly.
func (engine *Engine) inTx(ctx context.Context, fn func(tx *Engine) error) error {
	if engine.tx != nil {
		return fn(engine)
	}

	tx, err := engine.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.DriverError{Statement: "BEGIN", Err: err}
	}

	bound := *engine
	bound.conn = tx
	bound.tx = tx

	if err := fn(&bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			engine.log.WithError(rbErr).Warn("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return &core.DriverError{Statement: "COMMIT", Err: err}
	}
	return nil
}
