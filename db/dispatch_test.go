package db

import (
	"context"
	"errors"
	"testing"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/op"
	"github.com/LordWolfenstein/databass/ps"
)

func seedRows(t *testing.T, engine *Engine) {
	t.Helper()
	_, err := engine.Insert(context.Background(), "t",
		core.Row{"id": 1, "text": "a"}, core.Row{"id": 2, "text": "b"}, core.Row{"id": 3, "text": "c"})
	if err != nil {
		t.Fatalf("Failed to seed rows: %v", err)
	}
}

func TestApplyFeedContinueOnError(t *testing.T) {
	engine := setupTestEngine(t)
	seedRows(t, engine)

	feed := op.Feed{
		op.NewInsert("t", core.Row{"id": 4, "text": "d"}),
		op.NewDelete("t", core.Condition{"nonexistent_col": 1}, nil),
		op.NewUpdate("t", core.Row{"text": "z"}, core.Condition{"id": 1}, nil),
	}

	report, err := engine.ApplyFeed(context.Background(), feed, ContinueOnError)
	if err != nil {
		t.Fatalf("Failed to apply feed: %v", err)
	}

	if len(report.Outcomes) != 3 {
		t.Fatalf("Expected 3 outcomes, got %d", len(report.Outcomes))
	}
	if !report.Outcomes[0].OK() || !report.Outcomes[2].OK() {
		t.Errorf("Expected operations 0 and 2 to succeed: %v", report.Outcomes)
	}
	if core.KindOf(report.Outcomes[1].Err) != core.SchemaKind {
		t.Errorf("Expected operation 1 to fail with a schema error, got %v", report.Outcomes[1].Err)
	}
	if report.RolledBack {
		t.Error("Expected no rollback under continue-on-error")
	}
	if len(report.Failed()) != 1 || len(report.Succeeded()) != 2 {
		t.Errorf("Expected 1 failure and 2 successes, got %d and %d", len(report.Failed()), len(report.Succeeded()))
	}
	if report.Err() == nil {
		t.Error("Expected report error")
	}

	rows := selectAll(t, engine, "t")
	if len(rows) != 4 {
		t.Fatalf("Expected 4 rows, got %d", len(rows))
	}
	if rows[0]["text"] != "z" {
		t.Errorf("Expected row 1 updated, got %v", rows[0]["text"])
	}
}

func TestApplyFeedAtomicRollsBack(t *testing.T) {
	engine := setupTestEngine(t)
	seedRows(t, engine)

	feed := op.Feed{
		op.NewInsert("t", core.Row{"id": 4, "text": "d"}),
		op.NewDelete("t", core.Condition{"nonexistent_col": 1}, nil),
		op.NewUpdate("t", core.Row{"text": "z"}, core.Condition{"id": 1}, nil),
	}

	report, err := engine.ApplyFeed(context.Background(), feed, Atomic)
	if err != nil {
		t.Fatalf("Failed to apply feed: %v", err)
	}

	if !report.RolledBack {
		t.Error("Expected the feed to be rolled back")
	}
	if len(report.Outcomes) != 2 {
		t.Errorf("Expected processing to stop after the failure, got %d outcomes", len(report.Outcomes))
	}

	rows := selectAll(t, engine, "t")
	if len(rows) != 3 {
		t.Errorf("Expected the insert undone, got %d rows", len(rows))
	}
}

func TestApplyFeedAtomicUndoesCreate(t *testing.T) {
	engine := newTestEngine(t, Options{})
	ctx := context.Background()

	feed := op.Feed{
		op.Create{TableConfigs: op.TableConfigs{testTable}},
		op.NewInsert("t", core.Row{"id": 1}),
		op.NewDrop("missing"),
	}

	report, err := engine.ApplyFeed(ctx, feed, Atomic)
	if err != nil {
		t.Fatalf("Failed to apply feed: %v", err)
	}
	if !report.RolledBack {
		t.Fatal("Expected the feed to be rolled back")
	}

	ok, err := engine.HasTable(ctx, "t")
	if err != nil {
		t.Fatalf("Failed to check table: %v", err)
	}
	if ok {
		t.Error("Expected the created table rolled back")
	}
}

func TestApplyFeedAtomicCommits(t *testing.T) {
	engine := newTestEngine(t, Options{})

	feed := op.Feed{
		op.Create{TableConfigs: op.TableConfigs{testTable}},
		op.NewInsert("t", core.Row{"id": 1, "text": "a"}, core.Row{"id": 2, "text": "b"}),
		op.NewAlterTable("t", []core.ColumnSpec{{Field: "extra", Type: "text"}}),
		op.NewUpdate("t", core.Row{"extra": "x"}, core.Condition{"id": 2}, nil),
	}

	report, err := engine.ApplyFeed(context.Background(), feed, Atomic)
	if err != nil {
		t.Fatalf("Failed to apply feed: %v", err)
	}
	if err := report.Err(); err != nil {
		t.Fatalf("Expected every operation to succeed: %v", err)
	}

	rows := selectAll(t, engine, "t")
	if len(rows) != 2 || rows[1]["extra"] != "x" {
		t.Errorf("Unexpected rows %v", rows)
	}
}

func TestApplyWireRejectsBacktick(t *testing.T) {
	engine := setupTestEngine(t)

	_, err := engine.ApplyWire(context.Background(),
		"{\"bassfeed\": [{\"operation\": \"drop\", \"table\": \"t`\"}]}", ContinueOnError)
	if !errors.Is(err, core.ErrInjectionGuard) {
		t.Fatalf("Expected injection guard error, got %v", err)
	}

	ok, err := engine.HasTable(context.Background(), "t")
	if err != nil || !ok {
		t.Errorf("Expected table t untouched, got %v, %v", ok, err)
	}
}

func TestApplyWireRejectsMalformed(t *testing.T) {
	engine := setupTestEngine(t)
	seedRows(t, engine)

	_, err := engine.ApplyWire(context.Background(),
		`{"bassfeed": [{"operation": "delete", "table": "t", "where": {"id": 1}}, {"operation": "merge"}]}`, ContinueOnError)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if rows := selectAll(t, engine, "t"); len(rows) != 3 {
		t.Errorf("Expected nothing applied, got %d rows", len(rows))
	}
}

func TestApplyFeedJournal(t *testing.T) {
	journal, err := ps.NewMemoryJournal()
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}

	engine := newTestEngine(t, Options{Journal: journal, SkipDuplicates: true})
	ctx := context.Background()

	feed := op.Feed{
		op.Create{TableConfigs: op.TableConfigs{testTable}},
		op.NewInsert("t", core.Row{"id": 1}),
	}

	first, err := engine.ApplyFeed(ctx, feed, ContinueOnError)
	if err != nil {
		t.Fatalf("Failed to apply feed: %v", err)
	}
	if first.Duplicate {
		t.Error("Expected the first application not to be a duplicate")
	}
	if first.Entry.Seq != 1 || first.Entry.Digest != first.Digest {
		t.Errorf("Unexpected journal entry %+v", first.Entry)
	}

	second, err := engine.ApplyFeed(ctx, feed, ContinueOnError)
	if err != nil {
		t.Fatalf("Failed to reapply feed: %v", err)
	}
	if !second.Duplicate || len(second.Outcomes) != 0 {
		t.Errorf("Expected the duplicate feed skipped, got %+v", second)
	}

	entries, err := journal.Entries()
	if err != nil {
		t.Fatalf("Failed to read journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected one journal entry, got %d", len(entries))
	}

	wire, err := journal.Feed(entries[0])
	if err != nil {
		t.Fatalf("Failed to read journaled feed: %v", err)
	}
	decoded, err := op.Decode(wire)
	if err != nil {
		t.Fatalf("Failed to decode journaled feed: %v", err)
	}
	if len(decoded) != 2 {
		t.Errorf("Expected 2 journaled operations, got %d", len(decoded))
	}
}

func TestApplyFeedJournalsFailures(t *testing.T) {
	journal, err := ps.NewMemoryJournal()
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	engine := newTestEngine(t, Options{Journal: journal})

	report, err := engine.ApplyFeed(context.Background(), op.Feed{op.NewDrop("missing")}, Atomic)
	if err != nil {
		t.Fatalf("Failed to apply feed: %v", err)
	}
	if report.Entry.Failed != 1 || !report.Entry.RolledBack || report.Entry.Policy != "atomic" {
		t.Errorf("Unexpected journal entry %+v", report.Entry)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		name     string
		expected Policy
		wantErr  bool
	}{
		{"", ContinueOnError, false},
		{"continue", ContinueOnError, false},
		{"continue-on-error", ContinueOnError, false},
		{"ATOMIC", Atomic, false},
		{"sometimes", ContinueOnError, true},
	}

	for _, tt := range tests {
		policy, err := ParsePolicy(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if policy != tt.expected {
			t.Errorf("ParsePolicy(%q) = %v, expected %v", tt.name, policy, tt.expected)
		}
	}
}
