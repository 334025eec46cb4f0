package db

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/dialect"
	"github.com/LordWolfenstein/databass/op"
	log "github.com/sirupsen/logrus"
)

var benchTable = op.TableConfig{Name: "users", Columns: []core.ColumnSpec{
	{Field: "id", Type: "INTEGER", Null: "NO", Key: "PRI"},
	{Field: "name", Type: "TEXT"},
	{Field: "age", Type: "INTEGER"},
	{Field: "city", Type: "TEXT"},
}}

func benchRow(i int) core.Row {
	return core.Row{"id": i, "name": fmt.Sprintf("User%d", i), "age": 20 + i%50, "city": fmt.Sprintf("City%d", i%10)}
}

// setupBenchmarkEngine creates a store holding 1000 users
func setupBenchmarkEngine(b *testing.B) *Engine {
	store, d, err := dialect.Open(dialect.Options{Dialect: "sqlite", Path: filepath.Join(b.TempDir(), "bench.db")})
	if err != nil {
		b.Fatalf("Failed to open store: %v", err)
	}
	b.Cleanup(func() { store.Close() })

	logger := log.New()
	logger.SetLevel(log.ErrorLevel)
	engine := NewEngine(store, d, core.Identity{Name: "benchmark", Email: "bench@test.com"}, Options{Logger: log.NewEntry(logger)})

	ctx := context.Background()
	if _, err := engine.Create(ctx, op.TableConfigs{benchTable}); err != nil {
		b.Fatalf("Failed to create table: %v", err)
	}
	rows := make([]core.Row, 1000)
	for i := range rows {
		rows[i] = benchRow(i + 1)
	}
	if _, err := engine.Insert(ctx, "users", rows...); err != nil {
		b.Fatalf("Failed to insert rows: %v", err)
	}
	return engine
}

// BenchmarkBuildSelect measures compiling a request, including schema checks
func BenchmarkBuildSelect(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()
	request := SelectRequest{
		Table:   "users",
		Where:   core.Condition{"city": "City5", "age": 25},
		OrderBy: []string{"-name"},
		Limit:   10,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Builder().Select(ctx, request); err != nil {
			b.Fatalf("Build error: %v", err)
		}
	}
}

func BenchmarkSelectAll(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Select(ctx, SelectRequest{Table: "users"}); err != nil {
			b.Fatalf("Select error: %v", err)
		}
	}
}

func BenchmarkSelectWithWhere(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := engine.Select(ctx, SelectRequest{Table: "users", Where: core.Condition{"city": "City3"}})
		if err != nil {
			b.Fatalf("Select error: %v", err)
		}
	}
}

func BenchmarkCount(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Count(ctx, "users", nil, core.Condition{"city": "City1"}); err != nil {
			b.Fatalf("Count error: %v", err)
		}
	}
}

func BenchmarkDistinct(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Distinct(ctx, "users", "city"); err != nil {
			b.Fatalf("Distinct error: %v", err)
		}
	}
}

func BenchmarkInsert(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Insert(ctx, "users", benchRow(10000+i)); err != nil {
			b.Fatalf("Insert error: %v", err)
		}
	}
}

// BenchmarkBatchInsert inserts 100 rows per operation
func BenchmarkBatchInsert(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rows := make([]core.Row, 100)
		for j := range rows {
			rows[j] = benchRow(10000 + i*100 + j)
		}
		if _, err := engine.Insert(ctx, "users", rows...); err != nil {
			b.Fatalf("Batch insert error: %v", err)
		}
	}
}

// BenchmarkUpsert alternates between the update and insert paths
func BenchmarkUpsert(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Upsert(ctx, "users", core.Row{"id": 1 + i%2000, "age": i % 90}); err != nil {
			b.Fatalf("Upsert error: %v", err)
		}
	}
}

func BenchmarkUpdate(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := engine.Update(ctx, "users", core.Row{"age": i % 90}, core.Condition{"id": 1 + i%1000}, nil)
		if err != nil {
			b.Fatalf("Update error: %v", err)
		}
	}
}

// BenchmarkApplyFeed replays a small mixed feed under both policies
func BenchmarkApplyFeed(b *testing.B) {
	for _, policy := range []Policy{ContinueOnError, Atomic} {
		b.Run(policy.String(), func(b *testing.B) {
			engine := setupBenchmarkEngine(b)
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				id := 10000 + i
				feed := op.Feed{
					op.NewInsert("users", benchRow(id)),
					op.NewUpdate("users", core.Row{"city": "Moved"}, core.Condition{"id": id}, nil),
					op.NewDelete("users", core.Condition{"id": id}, nil),
				}
				report, err := engine.ApplyFeed(ctx, feed, policy)
				if err != nil {
					b.Fatalf("Apply error: %v", err)
				}
				if err := report.Err(); err != nil {
					b.Fatalf("Feed failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkSnapshot encodes the full table as a feed
func BenchmarkSnapshot(b *testing.B) {
	engine := setupBenchmarkEngine(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		feed, err := engine.Snapshot(ctx)
		if err != nil {
			b.Fatalf("Snapshot error: %v", err)
		}
		if _, err := op.Encode(feed); err != nil {
			b.Fatalf("Encode error: %v", err)
		}
	}
}
