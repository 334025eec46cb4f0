package databass

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/LordWolfenstein/databass/config"
	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/db"
	"github.com/LordWolfenstein/databass/op"
)

var testIdentity = core.Identity{Name: "test", Email: "test@test.com"}

// TestFunc is the signature for test functions that work with any journal
type TestFunc func(t *testing.T, instance *Instance, engine *db.Engine)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "bass.db")
	cfg.Journal.Enabled = true
	cfg.Log.Level = "warn"
	return cfg
}

func openInstance(t *testing.T, cfg config.Config) *Instance {
	t.Helper()
	instance, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open instance: %v", err)
	}
	t.Cleanup(func() { instance.Close() })
	return instance
}

// runWithBothJournals runs a test function with a memory and a file journal
func runWithBothJournals(t *testing.T, testFunc TestFunc) {
	t.Run("Memory", func(t *testing.T) {
		instance := openInstance(t, testConfig(t))
		testFunc(t, instance, instance.Engine(testIdentity))
	})

	t.Run("File", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Journal.Dir = filepath.Join(t.TempDir(), "journal")
		instance := openInstance(t, cfg)
		testFunc(t, instance, instance.Engine(testIdentity))
	})
}

var peopleTable = op.TableConfig{Name: "people", Columns: []core.ColumnSpec{
	{Field: "id", Type: "int(11)", Null: "NO", Key: "PRI"},
	{Field: "name", Type: "varchar(64)"},
	{Field: "city", Type: "varchar(64)", Default: "'Nowhere'"},
}}

// TestIntegrationWorkflow tests a complete feed workflow
func TestIntegrationWorkflow(t *testing.T) {
	runWithBothJournals(t, func(t *testing.T, instance *Instance, engine *db.Engine) {
		ctx := context.Background()

		feed := op.Feed{
			op.Create{TableConfigs: op.TableConfigs{peopleTable}},
			op.NewInsert("people",
				core.Row{"id": 1, "name": "Alice", "city": "Oslo"},
				core.Row{"id": 2, "name": "Bob", "city": "Bergen"},
				core.Row{"id": 3, "name": "Charlie", "city": "Oslo"}),
			op.NewUpdate("people", core.Row{"city": "Tromsø"}, core.Condition{"name": "Bob"}, nil),
			op.NewDelete("people", core.Condition{"city": "Oslo"}, core.Condition{"name": "Alice"}),
		}

		report, err := engine.ApplyFeed(ctx, feed, db.Atomic)
		if err != nil {
			t.Fatalf("Failed to apply feed: %v", err)
		}
		if err := report.Err(); err != nil {
			t.Fatalf("Expected feed to apply cleanly: %v", err)
		}

		result, err := engine.Select(ctx, db.SelectRequest{Table: "people", Columns: []string{"name", "city"}, OrderBy: []string{"id"}})
		if err != nil {
			t.Fatalf("Failed to select: %v", err)
		}
		expected := []core.Row{
			{"name": "Alice", "city": "Oslo"},
			{"name": "Bob", "city": "Tromsø"},
		}
		if !reflect.DeepEqual(result.Rows, expected) {
			t.Errorf("Expected %v, got %v", expected, result.Rows)
		}

		entries, err := instance.Journal.Entries()
		if err != nil {
			t.Fatalf("Failed to read journal: %v", err)
		}
		if len(entries) != 1 || entries[0].Operations != 4 {
			t.Errorf("Expected one journaled feed of 4 operations, got %+v", entries)
		}
	})
}

// TestIntegrationReplicate replays one store's journal into a second store
func TestIntegrationReplicate(t *testing.T) {
	runWithBothJournals(t, func(t *testing.T, instance *Instance, engine *db.Engine) {
		ctx := context.Background()

		if _, err := engine.ApplyFeed(ctx, op.Feed{op.Create{TableConfigs: op.TableConfigs{peopleTable}}}, db.ContinueOnError); err != nil {
			t.Fatalf("Failed to apply create: %v", err)
		}
		if _, err := engine.ApplyFeed(ctx, op.Feed{op.NewInsert("people", core.Row{"id": 1, "name": "Alice"})}, db.ContinueOnError); err != nil {
			t.Fatalf("Failed to apply insert: %v", err)
		}

		replicaCfg := config.Default()
		replicaCfg.Store.Path = filepath.Join(t.TempDir(), "replica.db")
		replicaCfg.Log.Level = "warn"
		replica := openInstance(t, replicaCfg).DefaultEngine()

		entries, err := instance.Journal.Entries()
		if err != nil {
			t.Fatalf("Failed to read journal: %v", err)
		}
		for _, entry := range entries {
			wire, err := instance.Journal.Feed(entry)
			if err != nil {
				t.Fatalf("Failed to read feed %s: %v", entry.Id, err)
			}
			report, err := replica.ApplyWire(ctx, wire, db.Atomic)
			if err != nil {
				t.Fatalf("Failed to replay feed %d: %v", entry.Seq, err)
			}
			if err := report.Err(); err != nil {
				t.Fatalf("Replay of feed %d failed: %v", entry.Seq, err)
			}
		}

		result, err := replica.Select(ctx, db.SelectRequest{Table: "people"})
		if err != nil {
			t.Fatalf("Failed to select from replica: %v", err)
		}
		if len(result.Rows) != 1 || result.Rows[0]["city"] != "Nowhere" {
			t.Errorf("Unexpected replica rows %v", result.Rows)
		}
	})
}

// TestIntegrationUpsertScenario covers insert, select and upsert through one table
func TestIntegrationUpsertScenario(t *testing.T) {
	instance := openInstance(t, testConfig(t))
	engine := instance.Engine(testIdentity)
	ctx := context.Background()

	_, err := engine.Create(ctx, op.TableConfigs{{Name: "t", Columns: []core.ColumnSpec{
		{Field: "id", Type: "int(11)", Null: "NO", Key: "PRI"},
		{Field: "text", Type: "text"},
	}}})
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	if _, err := engine.Insert(ctx, "t", core.Row{"id": 1, "text": "a"}); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}
	if _, err := engine.Upsert(ctx, "t", core.Row{"id": 1, "text": "b"}); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	result, err := engine.Select(ctx, db.SelectRequest{Table: "t", Where: core.Condition{"id": 1}})
	if err != nil {
		t.Fatalf("Failed to select: %v", err)
	}
	expected := []core.Row{{"id": int64(1), "text": "b"}}
	if !reflect.DeepEqual(result.Rows, expected) {
		t.Errorf("Expected %v, got %v", expected, result.Rows)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Dialect = "oracle"
	if _, err := Open(cfg); err == nil {
		t.Error("Expected error for unknown dialect")
	}
}

func TestOpenWithoutJournal(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "warn"
	instance := openInstance(t, cfg)
	if instance.Journal != nil {
		t.Error("Expected no journal")
	}
	if instance.Dialect.Name() != "sqlite" {
		t.Errorf("Expected sqlite, got %s", instance.Dialect.Name())
	}
}
