package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LordWolfenstein/databass/db"
	log "github.com/sirupsen/logrus"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Expected default config to validate: %v", err)
	}
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"store": {"dialect": "mariadb", "user": "bass", "password": "secret", "host": "db", "port": 3307, "database": "music"},
		"upsert": "replace",
		"policy": "atomic",
		"journal": {"enabled": true, "dir": "/var/lib/databass", "skip_duplicates": true}
	}`))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}

	if cfg.Store.Dialect != "mariadb" || cfg.Store.Port != 3307 {
		t.Errorf("Unexpected store %+v", cfg.Store)
	}
	if cfg.Identity.Name != "DataBass" {
		t.Errorf("Expected default identity kept, got %+v", cfg.Identity)
	}

	options, err := cfg.EngineOptions()
	if err != nil {
		t.Fatalf("Failed to build engine options: %v", err)
	}
	if options.Upsert != db.UpsertReplace || options.Policy != db.Atomic || !options.SkipDuplicates {
		t.Errorf("Unexpected engine options %+v", options)
	}
	if options.S3 != nil {
		t.Error("Expected no S3 config")
	}

	dialectOptions := cfg.DialectOptions()
	if dialectOptions.Database != "music" || dialectOptions.Host != "db" {
		t.Errorf("Unexpected dialect options %+v", dialectOptions)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte(`{"store": {"dialect": "sqlite", "flavour": "salty"}}`))
	if err == nil || !strings.Contains(err.Error(), "flavour") {
		t.Errorf("Expected unknown key error, got %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"DATABASS_DIALECT":       "mysql",
		"DATABASS_PORT":          "3310",
		"DATABASS_POLICY":        "atomic",
		"DATABASS_AUTH":          "true",
		"DATABASS_JWT_SECRET":    "s3cret",
		"DATABASS_S3_REGION":     "eu-north-1",
		"DATABASS_LOG_LEVEL":     "debug",
		"UNRELATED_PORT":         "1",
		"DATABASS_IDENTITY_NAME": "Replica",
	}
	lookup := func(name string) (string, bool) {
		value, ok := env[name]
		return value, ok
	}

	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("Failed to apply env: %v", err)
	}

	if cfg.Store.Dialect != "mysql" || cfg.Store.Port != 3310 {
		t.Errorf("Unexpected store %+v", cfg.Store)
	}
	if !cfg.Auth.Enabled || cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("Unexpected auth %+v", cfg.Auth)
	}
	if cfg.Identity.Name != "Replica" || cfg.Identity.Email != "databass@localhost" {
		t.Errorf("Unexpected identity %+v", cfg.Identity)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected config to validate: %v", err)
	}

	options, err := cfg.EngineOptions()
	if err != nil {
		t.Fatalf("Failed to build engine options: %v", err)
	}
	if options.S3 == nil || options.S3.Region != "eu-north-1" {
		t.Errorf("Expected S3 region, got %+v", options.S3)
	}
}

func TestApplyEnvInvalidValue(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(func(name string) (string, bool) {
		if name == "DATABASS_PORT" {
			return "many", true
		}
		return "", false
	})
	if err == nil || !strings.Contains(err.Error(), "DATABASS_PORT") {
		t.Errorf("Expected error naming DATABASS_PORT, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
	}{
		{"dialect", func(cfg *Config) { cfg.Store.Dialect = "oracle" }},
		{"key source", func(cfg *Config) { cfg.PrimaryKeySource = "guess" }},
		{"upsert", func(cfg *Config) { cfg.Upsert = "squash" }},
		{"policy", func(cfg *Config) { cfg.Policy = "sometimes" }},
		{"port", func(cfg *Config) { cfg.Store.Port = 70000 }},
		{"auth secret", func(cfg *Config) { cfg.Auth.Enabled = true }},
		{"log level", func(cfg *Config) { cfg.Log.Level = "loud" }},
		{"log format", func(cfg *Config) { cfg.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "databass.json")
	if err := os.WriteFile(path, []byte(`{"store": {"path": "bass.db"}, "log": {"format": "json"}}`), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("DATABASS_UPSERT", "replace")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Store.Path != "bass.db" || cfg.Upsert != "replace" {
		t.Errorf("Unexpected config %+v", cfg)
	}

	logger, err := cfg.Logger()
	if err != nil {
		t.Fatalf("Failed to build logger: %v", err)
	}
	if _, ok := logger.Formatter.(*log.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", logger.Formatter)
	}
	if logger.GetLevel() != log.InfoLevel {
		t.Errorf("Expected info level, got %v", logger.GetLevel())
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
