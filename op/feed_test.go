package op

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/LordWolfenstein/databass/core"
)

func sampleFeed() Feed {
	return Feed{
		Create{TableConfigs: TableConfigs{
			{Name: "zeta", Columns: []core.ColumnSpec{
				{Field: "id", Type: "int(11)", Null: "NO", Key: "PRI", Default: "None", Extra: "auto_increment"},
				{Field: "text", Type: "text", Null: "YES", Default: "'Nothing!'"},
			}},
			{Name: "alpha", Columns: []core.ColumnSpec{
				{Field: "id", Type: "int(11)", Key: "PRI"},
				{Field: "tid", Type: "double"},
			}},
		}},
		NewAlterTable("zeta", []core.ColumnSpec{{Field: "extra", Type: "text"}}, "text"),
		NewInsert("zeta",
			core.Row{"id": 1, "text": "a", "price": 2.0},
			core.Row{"id": 2, "text": nil, "price": 1e21}),
		NewUpdate("zeta", core.Row{"text": "b", "ratio": 0.5, "ok": true}, core.Condition{"id": 1}, nil),
		NewDelete("zeta", nil, core.Condition{"text": "keep"}),
		NewDrop("alpha"),
	}
}

func TestFeedRoundTrip(t *testing.T) {
	feed := sampleFeed()

	wire, err := Encode(feed)
	if err != nil {
		t.Fatalf("Failed to encode feed: %v", err)
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Failed to decode feed: %v", err)
	}

	if !reflect.DeepEqual(decoded, feed) {
		t.Errorf("Round trip mismatch:\nexpected %#v\ngot      %#v", feed, decoded)
	}
}

func TestEncodeIntegralFloat(t *testing.T) {
	feed := Feed{NewUpdate("t", core.Row{"price": 2.0, "count": 2}, core.Condition{"ratio": float32(-3)}, nil)}

	wire, err := Encode(feed)
	if err != nil {
		t.Fatalf("Failed to encode feed: %v", err)
	}
	for _, want := range []string{`"price":2.0`, `"count":2`, `"ratio":-3.0`} {
		if !strings.Contains(wire, want) {
			t.Errorf("Expected %s in %s", want, wire)
		}
	}

	decoded, err := Decode(wire)
	if err != nil {
		t.Fatalf("Failed to decode feed: %v", err)
	}
	update := decoded[0].(Update)
	if _, ok := update.Data["price"].(float64); !ok {
		t.Errorf("Expected price to decode as float64, got %T", update.Data["price"])
	}
	if _, ok := update.Data["count"].(int64); !ok {
		t.Errorf("Expected count to decode as int64, got %T", update.Data["count"])
	}
	if _, ok := update.Where["ratio"].(float64); !ok {
		t.Errorf("Expected ratio to decode as float64, got %T", update.Where["ratio"])
	}
}

func TestEncodeWireShape(t *testing.T) {
	wire, err := Encode(Feed{NewDelete("t", core.Condition{"id": 4}, nil)})
	if err != nil {
		t.Fatalf("Failed to encode feed: %v", err)
	}

	expected := `{"bassfeed":[{"operation":"delete","table":"t","where":{"id":4},"wherenot":{}}]}`
	if wire != expected {
		t.Errorf("Expected %s, got %s", expected, wire)
	}
}

func TestEncodeKeepsTableOrder(t *testing.T) {
	wire, err := Encode(sampleFeed()[:1])
	if err != nil {
		t.Fatalf("Failed to encode feed: %v", err)
	}
	if strings.Index(wire, `"zeta"`) > strings.Index(wire, `"alpha"`) {
		t.Errorf("Expected zeta before alpha in %s", wire)
	}
}

func TestDecodeBacktickGuard(t *testing.T) {
	// Not valid JSON either: the guard must fire before parsing.
	wire := "{\"bassfeed\": [{\"operation\": \"drop\", \"table\": \"t`; DROP TABLE x"

	_, err := Decode(wire)
	var guardErr *core.InjectionGuardError
	if !errors.As(err, &guardErr) {
		t.Fatalf("Expected InjectionGuardError, got %v", err)
	}
	if guardErr.Offset != strings.IndexByte(wire, '`') {
		t.Errorf("Expected offset %d, got %d", strings.IndexByte(wire, '`'), guardErr.Offset)
	}
}

func TestEncodeRefusesBacktick(t *testing.T) {
	_, err := Encode(Feed{NewInsert("t", core.Row{"text": "a`b"})})
	if !errors.Is(err, core.ErrInjectionGuard) {
		t.Errorf("Expected injection guard error, got %v", err)
	}
}

func TestDecodeValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		wire string
	}{
		{"malformed", `{"bassfeed": [`},
		{"missing key", `{"feed": []}`},
		{"not a list", `{"bassfeed": {}}`},
		{"unknown tag", `{"bassfeed": [{"operation": "truncate", "table": "t"}]}`},
		{"missing tag", `{"bassfeed": [{"table": "t"}]}`},
		{"missing table", `{"bassfeed": [{"operation": "drop"}]}`},
		{"missing tableconfigs", `{"bassfeed": [{"operation": "create"}]}`},
		{"bad data", `{"bassfeed": [{"operation": "insert", "table": "t", "data": 5}]}`},
		{"bad row", `{"bassfeed": [{"operation": "insert", "table": "t", "data": [{"a": 1}, 2]}]}`},
		{"bad where", `{"bassfeed": [{"operation": "delete", "table": "t", "where": [1]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.wire)
			if !errors.Is(err, core.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodeNamesOperationIndex(t *testing.T) {
	_, err := Decode(`{"bassfeed": [{"operation": "drop", "table": "t"}, {"operation": "merge"}]}`)
	if err == nil || !strings.Contains(err.Error(), "bassfeed[1]") {
		t.Errorf("Expected error naming bassfeed[1], got %v", err)
	}
}

func TestDecodeLenientShapes(t *testing.T) {
	feed, err := Decode(`{"server": "a", "bassfeed": [
		{"operation": "insert", "table": "t", "data": {"id": 1, "ratio": 2.5}},
		{"operation": "alter table", "table": "t", "add": {"Field": "c", "Type": "text"}, "drop": "b"}
	]}`)
	if err != nil {
		t.Fatalf("Failed to decode feed: %v", err)
	}

	insert, ok := feed[0].(Insert)
	if !ok {
		t.Fatalf("Expected Insert, got %T", feed[0])
	}
	if len(insert.Rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(insert.Rows))
	}
	if insert.Rows[0]["id"] != int64(1) {
		t.Errorf("Expected int64 id, got %T", insert.Rows[0]["id"])
	}
	if insert.Rows[0]["ratio"] != 2.5 {
		t.Errorf("Expected float ratio, got %v", insert.Rows[0]["ratio"])
	}

	alter := feed[1].(AlterTable)
	if len(alter.Add) != 1 || alter.Add[0].Field != "c" {
		t.Errorf("Expected single added column c, got %+v", alter.Add)
	}
	if !reflect.DeepEqual(alter.Drop, []string{"b"}) {
		t.Errorf("Expected drop [b], got %v", alter.Drop)
	}
}

func TestKindTags(t *testing.T) {
	for _, kind := range []Kind{CreateKind, AlterTableKind, DropKind, InsertKind, UpdateKind, DeleteKind} {
		parsed, ok := ParseKind(kind.String())
		if !ok || parsed != kind {
			t.Errorf("Tag %q did not map back to %d", kind.String(), kind)
		}
	}
	if AlterTableKind.String() != "alter table" {
		t.Errorf("Unexpected tag %q", AlterTableKind.String())
	}
}

func TestDigest(t *testing.T) {
	a := Digest(`{"bassfeed":[]}`)
	b := Digest(`{"bassfeed":[]}`)
	c := Digest(`{"bassfeed":[{"operation":"drop","table":"t"}]}`)

	if a != b {
		t.Error("Expected identical wire text to share a digest")
	}
	if a == c {
		t.Error("Expected different wire text to differ")
	}
	if len(a) != 64 {
		t.Errorf("Expected 64 hex chars, got %d", len(a))
	}
}
