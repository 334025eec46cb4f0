package op

import (
	"github.com/LordWolfenstein/databass/core"
)

// Kind identifies an operation variant. Its String form is the feed's wire tag.
type Kind int

const (
	CreateKind Kind = iota
	AlterTableKind
	DropKind
	InsertKind
	UpdateKind
	DeleteKind
)

func (kind Kind) String() string {
	switch kind {
	case CreateKind:
		return "create"
	case AlterTableKind:
		return "alter table"
	case DropKind:
		return "drop"
	case InsertKind:
		return "insert"
	case UpdateKind:
		return "update"
	case DeleteKind:
		return "delete"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire tag back to its Kind.
func ParseKind(tag string) (Kind, bool) {
	switch tag {
	case "create":
		return CreateKind, true
	case "alter table":
		return AlterTableKind, true
	case "drop":
		return DropKind, true
	case "insert":
		return InsertKind, true
	case "update":
		return UpdateKind, true
	case "delete":
		return DeleteKind, true
	default:
		return 0, false
	}
}

// Operation is one of Create, AlterTable, Drop, Insert, Update or Delete.
// The set is closed: only this package can add variants.
type Operation interface {
	Kind() Kind
	// Tables lists the tables the operation touches.
	Tables() []string
	operation()
}

// Create creates one table per entry, in order.
type Create struct {
	TableConfigs TableConfigs
}

// AlterTable drops then adds columns.
type AlterTable struct {
	Table string
	Add   []core.ColumnSpec
	Drop  []string
}

type Drop struct {
	Table string
}

// Insert adds rows. Every row must carry the same set of columns.
type Insert struct {
	Table string
	Rows  []core.Row
}

type Update struct {
	Table    string
	Data     core.Row
	Where    core.Condition
	WhereNot core.Condition
}

type Delete struct {
	Table    string
	Where    core.Condition
	WhereNot core.Condition
}

func (Create) Kind() Kind     { return CreateKind }
func (AlterTable) Kind() Kind { return AlterTableKind }
func (Drop) Kind() Kind       { return DropKind }
func (Insert) Kind() Kind     { return InsertKind }
func (Update) Kind() Kind     { return UpdateKind }
func (Delete) Kind() Kind     { return DeleteKind }

func (o Create) Tables() []string     { return o.TableConfigs.Names() }
func (o AlterTable) Tables() []string { return []string{o.Table} }
func (o Drop) Tables() []string       { return []string{o.Table} }
func (o Insert) Tables() []string     { return []string{o.Table} }
func (o Update) Tables() []string     { return []string{o.Table} }
func (o Delete) Tables() []string     { return []string{o.Table} }

func (Create) operation()     {}
func (AlterTable) operation() {}
func (Drop) operation()       {}
func (Insert) operation()     {}
func (Update) operation()     {}
func (Delete) operation()     {}

// NewCreate builds a Create for a single table.
func NewCreate(table string, columns ...core.ColumnSpec) Create {
	return Create{TableConfigs: TableConfigs{{Name: table, Columns: columns}}}
}

func NewAlterTable(table string, add []core.ColumnSpec, drop ...string) AlterTable {
	return AlterTable{Table: table, Add: add, Drop: drop}
}

func NewDrop(table string) Drop {
	return Drop{Table: table}
}

// NewInsert builds an Insert, normalizing Go numeric types the way a decoded feed carries them.
func NewInsert(table string, rows ...core.Row) Insert {
	normalized := make([]core.Row, len(rows))
	for i, row := range rows {
		normalized[i] = NormalizeRow(row)
	}
	return Insert{Table: table, Rows: normalized}
}

func NewUpdate(table string, data core.Row, where, whereNot core.Condition) Update {
	return Update{
		Table:    table,
		Data:     NormalizeRow(data),
		Where:    core.Condition(NormalizeRow(core.Row(where))),
		WhereNot: core.Condition(NormalizeRow(core.Row(whereNot))),
	}
}

func NewDelete(table string, where, whereNot core.Condition) Delete {
	return Delete{
		Table:    table,
		Where:    core.Condition(NormalizeRow(core.Row(where))),
		WhereNot: core.Condition(NormalizeRow(core.Row(whereNot))),
	}
}
