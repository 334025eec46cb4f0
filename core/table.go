package core

import "sort"

// NoDefault is the literal the MariaDB DESCRIBE output uses for a column without a default.
const NoDefault = "None"

// PrimaryKeyMarker is the Key value that flags a primary-key column.
const PrimaryKeyMarker = "PRI"

// ColumnSpec describes one column the way MariaDB's DESCRIBE reports it.
type ColumnSpec struct {
	Field   string `json:"Field"`
	Type    string `json:"Type"`
	Null    string `json:"Null,omitempty"`
	Key     string `json:"Key,omitempty"`
	Default string `json:"Default,omitempty"`
	Extra   string `json:"Extra,omitempty"`
}

// Nullable reports whether the column accepts NULL. An absent Null field means yes.
func (column ColumnSpec) Nullable() bool {
	return column.Null != "NO"
}

func (column ColumnSpec) IsPrimary() bool {
	return column.Key == PrimaryKeyMarker
}

// HasDefault reports whether Default carries a literal to render.
func (column ColumnSpec) HasDefault() bool {
	return column.Default != "" && column.Default != NoDefault
}

type TableSchema struct {
	Name        string       `json:"name"`
	Columns     []ColumnSpec `json:"columns"`
	PrimaryKeys []string     `json:"primary_keys"`
}

// HasColumn reports whether the table declares the named column.
func (schema TableSchema) HasColumn(name string) bool {
	for _, column := range schema.Columns {
		if column.Field == name {
			return true
		}
	}
	return false
}

// Column returns the spec of the named column.
func (schema TableSchema) Column(name string) (ColumnSpec, bool) {
	for _, column := range schema.Columns {
		if column.Field == name {
			return column, true
		}
	}
	return ColumnSpec{}, false
}

// ColumnNames returns the column names in declaration order.
func (schema TableSchema) ColumnNames() []string {
	names := make([]string, len(schema.Columns))
	for i, column := range schema.Columns {
		names[i] = column.Field
	}
	return names
}

// Row maps column names to values.
type Row map[string]any

// Keys returns the row's column names in sorted order.
func (row Row) Keys() []string {
	return sortedKeys(row)
}

// Condition maps column names to the value each must (where) or must not (wherenot) equal.
// Entries are conjoined with AND.
type Condition map[string]any

// Keys returns the condition's column names in sorted order.
func (condition Condition) Keys() []string {
	return sortedKeys(condition)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
