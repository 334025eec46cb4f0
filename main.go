package databass

import (
	"database/sql"
	"fmt"

	"github.com/LordWolfenstein/databass/config"
	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/db"
	"github.com/LordWolfenstein/databass/dialect"
	"github.com/LordWolfenstein/databass/ps"
	log "github.com/sirupsen/logrus"
)

type Instance struct {
	Config  config.Config
	DB      *sql.DB
	Dialect dialect.Dialect
	Journal *ps.Journal
	Logger  *log.Logger
	options db.Options
}

// Open connects to the configured store and opens the journal when enabled.
func Open(cfg config.Config) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	options, err := cfg.EngineOptions()
	if err != nil {
		return nil, err
	}

	store, d, err := dialect.Open(cfg.DialectOptions())
	if err != nil {
		return nil, err
	}

	instance := &Instance{
		Config:  cfg,
		DB:      store,
		Dialect: d,
		Logger:  logger,
		options: options,
	}

	if cfg.Journal.Enabled {
		journal, err := ps.Open(cfg.Journal.Dir, cfg.Journal.GitURL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		instance.Journal = journal
	}

	logger.WithFields(log.Fields{
		"dialect": d.Name(),
		"journal": cfg.Journal.Enabled,
	}).Debug("instance opened")
	return instance, nil
}

// Engine returns an engine acting as identity.
func (instance *Instance) Engine(identity core.Identity) *db.Engine {
	options := instance.options
	options.Journal = instance.Journal
	options.Logger = instance.Logger.WithField("identity", identity.Name)
	return db.NewEngine(instance.DB, instance.Dialect, identity, options)
}

// DefaultEngine returns an engine acting as the configured identity.
func (instance *Instance) DefaultEngine() *db.Engine {
	return instance.Engine(instance.Config.CoreIdentity())
}

func (instance *Instance) Close() error {
	return instance.DB.Close()
}
