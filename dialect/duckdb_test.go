//go:build duckdb

package dialect

import (
	"context"
	"reflect"
	"sort"
	"testing"
)

func openTestDuckDB(t *testing.T) (*testStore, context.Context) {
	t.Helper()
	db, d, err := Open(Options{Dialect: "duckdb"})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE "people" (
		"id" INTEGER NOT NULL,
		"region" VARCHAR NOT NULL,
		"name" VARCHAR DEFAULT 'nobody',
		PRIMARY KEY ("region", "id"))`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}
	return &testStore{db: db, d: d}, ctx
}

func TestDuckDBCatalog(t *testing.T) {
	h, ctx := openTestDuckDB(t)

	tables, err := h.d.Tables(ctx, h.db)
	if err != nil {
		t.Fatalf("Failed to list tables: %v", err)
	}
	if !reflect.DeepEqual(tables, []string{"people"}) {
		t.Errorf("Expected [people], got %v", tables)
	}

	columns, err := h.d.Columns(ctx, h.db, "people")
	if err != nil {
		t.Fatalf("Failed to read columns: %v", err)
	}
	if len(columns) != 3 {
		t.Fatalf("Expected 3 columns, got %d", len(columns))
	}
	if !columns[0].IsPrimary() || !columns[1].IsPrimary() || columns[2].IsPrimary() {
		t.Errorf("Expected id and region marked primary: %+v", columns)
	}

	keys, err := h.d.PrimaryKeys(ctx, h.db, "people")
	if err != nil {
		t.Fatalf("Failed to read primary keys: %v", err)
	}
	sort.Strings(keys)
	if !reflect.DeepEqual(keys, []string{"id", "region"}) {
		t.Errorf("Expected keys id and region, got %v", keys)
	}

	missing, err := h.d.Columns(ctx, h.db, "nope")
	if err != nil || len(missing) != 0 {
		t.Errorf("Expected no columns and no error, got %v, %v", missing, err)
	}
}
