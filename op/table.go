package op

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/LordWolfenstein/databass/core"
)

// TableConfig is one table definition inside a create operation.
type TableConfig struct {
	Name    string
	Columns []core.ColumnSpec
}

// PrimaryKeys returns the columns flagged PRI, in declaration order.
func (config TableConfig) PrimaryKeys() []string {
	var keys []string
	for _, column := range config.Columns {
		if column.IsPrimary() {
			keys = append(keys, column.Field)
		}
	}
	return keys
}

// TableConfigs is the ordered "tableconfigs" object of a create operation.
// It encodes as a JSON object keyed by table name and keeps the key order on decode.
type TableConfigs []TableConfig

func (configs TableConfigs) Names() []string {
	names := make([]string, len(configs))
	for i, config := range configs {
		names[i] = config.Name
	}
	return names
}

func (configs TableConfigs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, config := range configs {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(config.Name)
		if err != nil {
			return nil, err
		}
		columns := config.Columns
		if columns == nil {
			columns = []core.ColumnSpec{}
		}
		body, err := json.Marshal(columns)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (configs *TableConfigs) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))

	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("tableconfigs must be an object")
	}

	var result TableConfigs
	seen := make(map[string]bool)
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		name, _ := token.(string)
		if seen[name] {
			return fmt.Errorf("table %q defined twice", name)
		}
		seen[name] = true

		var columns []core.ColumnSpec
		if err := decoder.Decode(&columns); err != nil {
			return fmt.Errorf("table %q: %w", name, err)
		}
		if len(columns) == 0 {
			columns = nil
		}
		result = append(result, TableConfig{Name: name, Columns: columns})
	}

	if _, err := decoder.Token(); err != nil {
		return err
	}

	*configs = result
	return nil
}
