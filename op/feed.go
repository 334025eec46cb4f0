package op

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/LordWolfenstein/databass/core"
	"github.com/zeebo/blake3"
)

// FeedKey is the envelope key that carries the operation list.
const FeedKey = "bassfeed"

// Feed is an ordered list of operations, replayed strictly in sequence.
type Feed []Operation

type createWire struct {
	Operation    string       `json:"operation"`
	TableConfigs TableConfigs `json:"tableconfigs"`
}

type alterTableWire struct {
	Operation string            `json:"operation"`
	Table     string            `json:"table"`
	Add       []core.ColumnSpec `json:"add"`
	Drop      []string          `json:"drop"`
}

type dropWire struct {
	Operation string `json:"operation"`
	Table     string `json:"table"`
}

type insertWire struct {
	Operation string     `json:"operation"`
	Table     string     `json:"table"`
	Data      []core.Row `json:"data"`
}

type updateWire struct {
	Operation string         `json:"operation"`
	Table     string         `json:"table"`
	Data      core.Row       `json:"data"`
	Where     core.Condition `json:"where"`
	WhereNot  core.Condition `json:"wherenot"`
}

type deleteWire struct {
	Operation string         `json:"operation"`
	Table     string         `json:"table"`
	Where     core.Condition `json:"where"`
	WhereNot  core.Condition `json:"wherenot"`
}

// operationWire is the decode-side view of any operation object.
type operationWire struct {
	Operation    *string         `json:"operation"`
	Table        *string         `json:"table"`
	TableConfigs json.RawMessage `json:"tableconfigs"`
	Add          json.RawMessage `json:"add"`
	Drop         json.RawMessage `json:"drop"`
	Data         json.RawMessage `json:"data"`
	Where        json.RawMessage `json:"where"`
	WhereNot     json.RawMessage `json:"wherenot"`
}

// Encode renders the feed as wire text: {"bassfeed": [...]}.
// It refuses to produce text the receiving side's injection guard would reject,
// returning an InjectionGuardError instead. Decode(Encode(F)) == F therefore
// holds only for feeds whose names and values contain no backtick.
func Encode(feed Feed) (string, error) {
	items := make([]any, len(feed))
	for i, operation := range feed {
		item, err := encodeOperation(operation)
		if err != nil {
			return "", fmt.Errorf("operation %d: %w", i, err)
		}
		items[i] = item
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(map[string]any{FeedKey: items}); err != nil {
		return "", fmt.Errorf("failed to encode feed: %w", err)
	}

	wire := strings.TrimSuffix(buf.String(), "\n")
	if offset := strings.IndexByte(wire, '`'); offset >= 0 {
		return "", &core.InjectionGuardError{Offset: offset}
	}
	return wire, nil
}

func encodeOperation(operation Operation) (any, error) {
	tag := operation.Kind().String()
	switch o := operation.(type) {
	case Create:
		return createWire{Operation: tag, TableConfigs: o.TableConfigs}, nil
	case AlterTable:
		return alterTableWire{Operation: tag, Table: o.Table, Add: orEmpty(o.Add), Drop: orEmpty(o.Drop)}, nil
	case Drop:
		return dropWire{Operation: tag, Table: o.Table}, nil
	case Insert:
		rows := make([]core.Row, len(o.Rows))
		for i, row := range o.Rows {
			rows[i] = emptyRow(row)
		}
		return insertWire{Operation: tag, Table: o.Table, Data: rows}, nil
	case Update:
		return updateWire{Operation: tag, Table: o.Table, Data: emptyRow(o.Data), Where: emptyCondition(o.Where), WhereNot: emptyCondition(o.WhereNot)}, nil
	case Delete:
		return deleteWire{Operation: tag, Table: o.Table, Where: emptyCondition(o.Where), WhereNot: emptyCondition(o.WhereNot)}, nil
	default:
		return nil, fmt.Errorf("unsupported operation %T", operation)
	}
}

// Decode parses wire text into a Feed.
//
// The raw text is scanned for a backtick before any JSON parsing; if one is found
// Decode fails with an InjectionGuardError and parses nothing.
// Numbers written without a fraction or exponent decode as int64, all others
// as float64.
func Decode(wire string) (Feed, error) {
	if offset := strings.IndexByte(wire, '`'); offset >= 0 {
		return nil, &core.InjectionGuardError{Offset: offset}
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(wire), &envelope); err != nil {
		return nil, core.NewValidationError("feed", "malformed JSON: %v", err)
	}

	raw, ok := envelope[FeedKey]
	if !ok {
		return nil, core.NewValidationError("feed", "missing %q key", FeedKey)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, core.NewValidationError(FeedKey, "must be a list of operations")
	}

	feed := make(Feed, 0, len(items))
	for i, item := range items {
		operation, err := decodeOperation(item)
		if err != nil {
			if validationErr, ok := err.(*core.ValidationError); ok {
				validationErr.Field = fmt.Sprintf("%s[%d].%s", FeedKey, i, validationErr.Field)
				return nil, validationErr
			}
			return nil, core.NewValidationError(fmt.Sprintf("%s[%d]", FeedKey, i), "%v", err)
		}
		feed = append(feed, operation)
	}
	return feed, nil
}

func decodeOperation(item json.RawMessage) (Operation, error) {
	var wire operationWire
	if err := json.Unmarshal(item, &wire); err != nil {
		return nil, core.NewValidationError("operation", "must be an object")
	}
	if wire.Operation == nil {
		return nil, core.NewValidationError("operation", "missing operation tag")
	}

	kind, ok := ParseKind(*wire.Operation)
	if !ok {
		return nil, core.NewValidationError("operation", "unknown operation %q", *wire.Operation)
	}

	if kind == CreateKind {
		if len(wire.TableConfigs) == 0 {
			return nil, core.NewValidationError("tableconfigs", "required for create")
		}
		var configs TableConfigs
		if err := json.Unmarshal(wire.TableConfigs, &configs); err != nil {
			return nil, core.NewValidationError("tableconfigs", "%v", err)
		}
		return Create{TableConfigs: configs}, nil
	}

	if wire.Table == nil {
		return nil, core.NewValidationError("table", "required for %s", kind)
	}
	table := *wire.Table

	switch kind {
	case AlterTableKind:
		add, err := decodeColumns(wire.Add)
		if err != nil {
			return nil, err
		}
		drop, err := decodeNames(wire.Drop)
		if err != nil {
			return nil, err
		}
		return AlterTable{Table: table, Add: add, Drop: drop}, nil

	case DropKind:
		return Drop{Table: table}, nil

	case InsertKind:
		rows, err := decodeRows(wire.Data)
		if err != nil {
			return nil, err
		}
		return Insert{Table: table, Rows: rows}, nil

	case UpdateKind:
		data, err := decodeMapping("data", wire.Data)
		if err != nil {
			return nil, err
		}
		where, whereNot, err := decodeConditions(wire)
		if err != nil {
			return nil, err
		}
		return Update{Table: table, Data: data, Where: where, WhereNot: whereNot}, nil

	default:
		where, whereNot, err := decodeConditions(wire)
		if err != nil {
			return nil, err
		}
		return Delete{Table: table, Where: where, WhereNot: whereNot}, nil
	}
}

// decodeColumns accepts a single column object or a list of them.
func decodeColumns(raw json.RawMessage) ([]core.ColumnSpec, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var columns []core.ColumnSpec
	if err := json.Unmarshal(raw, &columns); err != nil {
		var column core.ColumnSpec
		if err := json.Unmarshal(raw, &column); err != nil {
			return nil, core.NewValidationError("add", "must be a column or a list of columns")
		}
		columns = []core.ColumnSpec{column}
	}
	if len(columns) == 0 {
		return nil, nil
	}
	return columns, nil
}

// decodeNames accepts a single name or a list of names.
func decodeNames(raw json.RawMessage) ([]string, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, core.NewValidationError("drop", "must be a name or a list of names")
		}
		names = []string{name}
	}
	if len(names) == 0 {
		return nil, nil
	}
	return names, nil
}

// decodeRows accepts a single row object or a list of them.
func decodeRows(raw json.RawMessage) ([]core.Row, error) {
	if isAbsent(raw) {
		return nil, core.NewValidationError("data", "required for insert")
	}
	value, err := decodeValue(raw)
	if err != nil {
		return nil, core.NewValidationError("data", "%v", err)
	}

	switch v := value.(type) {
	case map[string]any:
		return []core.Row{rowOrNil(v)}, nil
	case []any:
		rows := make([]core.Row, 0, len(v))
		for i, item := range v {
			object, ok := item.(map[string]any)
			if !ok {
				return nil, core.NewValidationError(fmt.Sprintf("data[%d]", i), "must be an object")
			}
			rows = append(rows, rowOrNil(object))
		}
		return rows, nil
	default:
		return nil, core.NewValidationError("data", "must be an object or a list of objects")
	}
}

func decodeMapping(field string, raw json.RawMessage) (core.Row, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	value, err := decodeValue(raw)
	if err != nil {
		return nil, core.NewValidationError(field, "%v", err)
	}
	object, ok := value.(map[string]any)
	if !ok {
		return nil, core.NewValidationError(field, "must be an object")
	}
	return rowOrNil(object), nil
}

func decodeConditions(wire operationWire) (core.Condition, core.Condition, error) {
	where, err := decodeMapping("where", wire.Where)
	if err != nil {
		return nil, nil, err
	}
	whereNot, err := decodeMapping("wherenot", wire.WhereNot)
	if err != nil {
		return nil, nil, err
	}
	return core.Condition(where), core.Condition(whereNot), nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	return normalizeValue(value), nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func rowOrNil(object map[string]any) core.Row {
	if len(object) == 0 {
		return nil
	}
	return core.Row(object)
}

// NormalizeRow converts the row's values to the types a decoded feed carries:
// int64 for integers, float64 for other numbers. An empty row becomes nil.
func NormalizeRow(row core.Row) core.Row {
	if len(row) == 0 {
		return nil
	}
	normalized := make(core.Row, len(row))
	for key, value := range row {
		normalized[key] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch v := value.(type) {
	case json.Number:
		if !isFloatText(v.String()) {
			if i, err := v.Int64(); err == nil {
				return i
			}
		}
		f, err := v.Float64()
		if err != nil {
			return v.String()
		}
		return f
	case int:
		return int64(v)
	case int8:
		return int64(v)
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case uint:
		return uintValue(uint64(v))
	case uint8:
		return int64(v)
	case uint16:
		return int64(v)
	case uint32:
		return int64(v)
	case uint64:
		return uintValue(v)
	case float32:
		return float64(v)
	case map[string]any:
		for key, item := range v {
			v[key] = normalizeValue(item)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = normalizeValue(item)
		}
		return v
	default:
		return value
	}
}

func uintValue(v uint64) any {
	if v > math.MaxInt64 {
		return float64(v)
	}
	return int64(v)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func emptyRow(row core.Row) core.Row {
	return core.Row(wireMapping(row))
}

func emptyCondition(condition core.Condition) core.Condition {
	return core.Condition(wireMapping(condition))
}

func wireMapping(mapping map[string]any) map[string]any {
	out := make(map[string]any, len(mapping))
	for key, value := range mapping {
		out[key] = wireValue(value)
	}
	return out
}

// wireValue writes floats with a fraction or exponent, so 2.0 stays a float
// on the wire instead of decoding as the integer 2.
func wireValue(value any) any {
	switch v := value.(type) {
	case float64:
		return floatNumber(v)
	case float32:
		return floatNumber(float64(v))
	case map[string]any:
		return wireMapping(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = wireValue(item)
		}
		return out
	default:
		return value
	}
}

func floatNumber(f float64) any {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return f
	}
	text := strconv.FormatFloat(f, 'g', -1, 64)
	if !isFloatText(text) {
		text += ".0"
	}
	return json.Number(text)
}

func isFloatText(text string) bool {
	return strings.ContainsAny(text, ".eE")
}

// Digest returns the hex BLAKE3 digest of wire text. Identical feeds share a digest.
func Digest(wire string) string {
	sum := blake3.Sum256([]byte(wire))
	return hex.EncodeToString(sum[:])
}
