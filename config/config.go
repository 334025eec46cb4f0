// Package config loads DataBass settings from a JSON file and DATABASS_* environment variables.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/db"
	"github.com/LordWolfenstein/databass/dialect"
	log "github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DATABASS_"

// Config is the complete configuration of a DataBass instance.
type Config struct {
	Store            Store    `json:"store"`
	PrimaryKeySource string   `json:"primary_key_source,omitempty"`
	Upsert           string   `json:"upsert,omitempty"`
	Policy           string   `json:"policy,omitempty"`
	Journal          Journal  `json:"journal"`
	S3               S3       `json:"s3"`
	Auth             Auth     `json:"auth"`
	Identity         Identity `json:"identity"`
	Log              Log      `json:"log"`
}

// Store selects and addresses the database. A DSN, when set, wins over the
// individual connection fields.
type Store struct {
	Dialect      string `json:"dialect,omitempty"`
	DSN          string `json:"dsn,omitempty"`
	Path         string `json:"path,omitempty"`
	User         string `json:"user,omitempty"`
	Password     string `json:"password,omitempty"`
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	Database     string `json:"database,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

// Journal configures the git feed journal. An empty Dir keeps the journal in memory.
type Journal struct {
	Enabled        bool   `json:"enabled"`
	Dir            string `json:"dir,omitempty"`
	GitURL         string `json:"git_url,omitempty"`
	SkipDuplicates bool   `json:"skip_duplicates"`
}

type S3 struct {
	AccessKey string `json:"access_key,omitempty"`
	SecretKey string `json:"secret_key,omitempty"`
	Region    string `json:"region,omitempty"`
	Endpoint  string `json:"endpoint,omitempty"`
}

type Auth struct {
	Enabled    bool   `json:"enabled"`
	JWTSecret  string `json:"jwt_secret,omitempty"`
	Issuer     string `json:"issuer,omitempty"`
	Audience   string `json:"audience,omitempty"`
	NameClaim  string `json:"name_claim,omitempty"`
	EmailClaim string `json:"email_claim,omitempty"`
}

type Identity struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type Log struct {
	Level  string `json:"level,omitempty"`
	Format string `json:"format,omitempty"`
}

// Default returns the configuration used when nothing else is given: an
// in-memory SQLite store and no journal.
func Default() Config {
	return Config{
		Store:            Store{Dialect: "sqlite"},
		PrimaryKeySource: db.KeysFromCatalog.String(),
		Upsert:           db.UpsertMerge.String(),
		Policy:           db.ContinueOnError.String(),
		Identity:         Identity{Name: "DataBass", Email: "databass@localhost"},
		Log:              Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes data over the defaults. Unknown keys are an error.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) decode(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(cfg)
}

// envBinding maps one environment variable onto a field.
type envBinding struct {
	name string
	set  func(cfg *Config, value string) error
}

func stringField(get func(cfg *Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*get(cfg) = value
		return nil
	}
}

func intField(get func(cfg *Config) *int) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*get(cfg) = n
		return nil
	}
}

func boolField(get func(cfg *Config) *bool) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*get(cfg) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"DIALECT", stringField(func(c *Config) *string { return &c.Store.Dialect })},
	{"DSN", stringField(func(c *Config) *string { return &c.Store.DSN })},
	{"PATH", stringField(func(c *Config) *string { return &c.Store.Path })},
	{"USER", stringField(func(c *Config) *string { return &c.Store.User })},
	{"PASSWORD", stringField(func(c *Config) *string { return &c.Store.Password })},
	{"HOST", stringField(func(c *Config) *string { return &c.Store.Host })},
	{"PORT", intField(func(c *Config) *int { return &c.Store.Port })},
	{"DATABASE", stringField(func(c *Config) *string { return &c.Store.Database })},
	{"MAX_OPEN_CONNS", intField(func(c *Config) *int { return &c.Store.MaxOpenConns })},
	{"PRIMARY_KEY_SOURCE", stringField(func(c *Config) *string { return &c.PrimaryKeySource })},
	{"UPSERT", stringField(func(c *Config) *string { return &c.Upsert })},
	{"POLICY", stringField(func(c *Config) *string { return &c.Policy })},
	{"JOURNAL", boolField(func(c *Config) *bool { return &c.Journal.Enabled })},
	{"JOURNAL_DIR", stringField(func(c *Config) *string { return &c.Journal.Dir })},
	{"GIT_URL", stringField(func(c *Config) *string { return &c.Journal.GitURL })},
	{"SKIP_DUPLICATES", boolField(func(c *Config) *bool { return &c.Journal.SkipDuplicates })},
	{"S3_ACCESS_KEY", stringField(func(c *Config) *string { return &c.S3.AccessKey })},
	{"S3_SECRET_KEY", stringField(func(c *Config) *string { return &c.S3.SecretKey })},
	{"S3_REGION", stringField(func(c *Config) *string { return &c.S3.Region })},
	{"S3_ENDPOINT", stringField(func(c *Config) *string { return &c.S3.Endpoint })},
	{"AUTH", boolField(func(c *Config) *bool { return &c.Auth.Enabled })},
	{"JWT_SECRET", stringField(func(c *Config) *string { return &c.Auth.JWTSecret })},
	{"JWT_ISSUER", stringField(func(c *Config) *string { return &c.Auth.Issuer })},
	{"JWT_AUDIENCE", stringField(func(c *Config) *string { return &c.Auth.Audience })},
	{"IDENTITY_NAME", stringField(func(c *Config) *string { return &c.Identity.Name })},
	{"IDENTITY_EMAIL", stringField(func(c *Config) *string { return &c.Identity.Email })},
	{"LOG_LEVEL", stringField(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", stringField(func(c *Config) *string { return &c.Log.Format })},
}

// ApplyEnv overrides fields from DATABASS_* variables found by lookup.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, binding := range envBindings {
		name := EnvPrefix + binding.name
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := binding.set(cfg, value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// Validate checks every enumerated field.
func (cfg Config) Validate() error {
	if _, err := dialect.Lookup(cfg.Store.Dialect); err != nil {
		return err
	}
	if _, err := db.ParsePrimaryKeySource(cfg.PrimaryKeySource); err != nil {
		return err
	}
	if _, err := db.ParseUpsertMode(cfg.Upsert); err != nil {
		return err
	}
	if _, err := db.ParsePolicy(cfg.Policy); err != nil {
		return err
	}
	if cfg.Store.Port < 0 || cfg.Store.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Store.Port)
	}
	if cfg.Auth.Enabled && cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth enabled without jwt_secret")
	}
	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format: %s", cfg.Log.Format)
	}
	return nil
}

func (cfg Config) DialectOptions() dialect.Options {
	return dialect.Options{
		Dialect:      cfg.Store.Dialect,
		DSN:          cfg.Store.DSN,
		Path:         cfg.Store.Path,
		User:         cfg.Store.User,
		Password:     cfg.Store.Password,
		Host:         cfg.Store.Host,
		Port:         cfg.Store.Port,
		Database:     cfg.Store.Database,
		MaxOpenConns: cfg.Store.MaxOpenConns,
	}
}

// EngineOptions converts the engine settings. The journal and logger are
// left for the caller to attach.
func (cfg Config) EngineOptions() (db.Options, error) {
	keySource, err := db.ParsePrimaryKeySource(cfg.PrimaryKeySource)
	if err != nil {
		return db.Options{}, err
	}
	upsert, err := db.ParseUpsertMode(cfg.Upsert)
	if err != nil {
		return db.Options{}, err
	}
	policy, err := db.ParsePolicy(cfg.Policy)
	if err != nil {
		return db.Options{}, err
	}

	options := db.Options{
		PrimaryKeySource: keySource,
		Upsert:           upsert,
		Policy:           policy,
		SkipDuplicates:   cfg.Journal.SkipDuplicates,
	}
	if cfg.S3 != (S3{}) {
		options.S3 = &db.S3Config{
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
		}
	}
	return options, nil
}

func (cfg Config) CoreIdentity() core.Identity {
	return core.Identity{Name: cfg.Identity.Name, Email: cfg.Identity.Email}
}

// Logger builds a logrus logger at the configured level and format.
func (cfg Config) Logger() (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	logger := log.New()
	logger.SetLevel(level)
	if strings.EqualFold(cfg.Log.Format, "json") {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}
