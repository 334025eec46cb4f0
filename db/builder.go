package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/dialect"
	"github.com/LordWolfenstein/databass/op"
	"github.com/LordWolfenstein/databass/sql"
)

// Statement is compiled SQL text with its bound values. Every value travels
// in Args or Batch; Text only ever holds placeholders and quoted identifiers.
type Statement struct {
	Text string
	Args []any
	// Batch, when set, runs Text once per argument list in one transaction.
	Batch [][]any
	// Query marks statements that return rows.
	Query bool
}

func (statement Statement) String() string {
	return statement.Text
}

// SelectRequest describes a structured read.
type SelectRequest struct {
	Table    string
	Where    core.Condition
	WhereNot core.Condition
	// Columns limits the output; empty means every column.
	Columns  []string
	Distinct bool
	// OrderBy lists columns to sort by; a leading "-" sorts descending.
	OrderBy []string
	Limit   int
}

// Builder compiles structured requests into Statements after checking every
// referenced table and column against the live schema.
type Builder struct {
	introspector *Introspector
	dialect      dialect.Dialect
}

type selectClause struct {
	columns  []string
	distinct bool
}

func (c selectClause) render(quote func(string) string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if c.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(c.columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(quoteAll(c.columns, quote))
	}
	return b.String()
}

// whereClause conjoins equality and inequality tests with AND.
type whereClause struct {
	where    core.Condition
	whereNot core.Condition
}

func (c whereClause) empty() bool {
	return len(c.where) == 0 && len(c.whereNot) == 0
}

func (c whereClause) render(quote func(string) string) (string, []any) {
	if c.empty() {
		return "", nil
	}

	var (
		tests []string
		args  []any
	)
	for _, column := range c.where.Keys() {
		value := c.where[column]
		if value == nil {
			tests = append(tests, quote(column)+" IS NULL")
			continue
		}
		tests = append(tests, quote(column)+" = ?")
		args = append(args, value)
	}
	for _, column := range c.whereNot.Keys() {
		value := c.whereNot[column]
		if value == nil {
			tests = append(tests, quote(column)+" IS NOT NULL")
			continue
		}
		tests = append(tests, quote(column)+" <> ?")
		args = append(args, value)
	}
	return " WHERE " + strings.Join(tests, " AND "), args
}

type setClause struct {
	data core.Row
}

func (c setClause) render(quote func(string) string) (string, []any) {
	columns := c.data.Keys()
	assignments := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, column := range columns {
		assignments[i] = quote(column) + " = ?"
		args[i] = c.data[column]
	}
	return " SET " + strings.Join(assignments, ", "), args
}

func quoteAll(names []string, quote func(string) string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quote(name)
	}
	return strings.Join(quoted, ", ")
}

// checkColumns reports the first referenced column the schema lacks: where
// columns first, then wherenot columns, then the rest.
func checkColumns(schema core.TableSchema, where, whereNot core.Condition, columns []string) error {
	groups := [][]string{where.Keys(), whereNot.Keys(), columns}
	for _, group := range groups {
		for _, column := range group {
			if !schema.HasColumn(column) {
				return core.NewColumnNotFound(schema.Name, column)
			}
		}
	}
	return nil
}

func checkIdentifiers(field string, names ...string) error {
	for _, name := range names {
		if !sql.IsIdentifier(name) {
			return core.NewValidationError(field, "%q is not a valid identifier", name)
		}
	}
	return nil
}

// schemaFor loads the table schema and checks the referenced columns.
func (b *Builder) schemaFor(ctx context.Context, table string, where, whereNot core.Condition, columns []string) (core.TableSchema, error) {
	schema, err := b.introspector.Schema(ctx, table)
	if err != nil {
		return core.TableSchema{}, err
	}
	if err := checkColumns(schema, where, whereNot, columns); err != nil {
		return core.TableSchema{}, err
	}
	if err := checkIdentifiers("table", table); err != nil {
		return core.TableSchema{}, err
	}
	if err := checkIdentifiers("column", where.Keys()...); err != nil {
		return core.TableSchema{}, err
	}
	if err := checkIdentifiers("column", whereNot.Keys()...); err != nil {
		return core.TableSchema{}, err
	}
	if err := checkIdentifiers("column", columns...); err != nil {
		return core.TableSchema{}, err
	}
	return schema, nil
}

func (b *Builder) Select(ctx context.Context, request SelectRequest) (Statement, error) {
	orderColumns := make([]string, len(request.OrderBy))
	for i, column := range request.OrderBy {
		orderColumns[i] = strings.TrimPrefix(column, "-")
	}

	referenced := append(append([]string{}, request.Columns...), orderColumns...)
	if _, err := b.schemaFor(ctx, request.Table, request.Where, request.WhereNot, referenced); err != nil {
		return Statement{}, err
	}
	if request.Limit < 0 {
		return Statement{}, core.NewValidationError("limit", "must not be negative")
	}

	quote := b.dialect.QuoteIdent
	where, args := whereClause{request.Where, request.WhereNot}.render(quote)

	var text strings.Builder
	text.WriteString(selectClause{request.Columns, request.Distinct}.render(quote))
	text.WriteString(" FROM ")
	text.WriteString(quote(request.Table))
	text.WriteString(where)

	if len(request.OrderBy) > 0 {
		terms := make([]string, len(request.OrderBy))
		for i, column := range request.OrderBy {
			terms[i] = quote(orderColumns[i])
			if strings.HasPrefix(column, "-") {
				terms[i] += " DESC"
			}
		}
		text.WriteString(" ORDER BY ")
		text.WriteString(strings.Join(terms, ", "))
	}
	if request.Limit > 0 {
		text.WriteString(" LIMIT ?")
		args = append(args, request.Limit)
	}

	return Statement{Text: text.String(), Args: args, Query: true}, nil
}

func (b *Builder) Count(ctx context.Context, table string, where, whereNot core.Condition) (Statement, error) {
	if _, err := b.schemaFor(ctx, table, where, whereNot, nil); err != nil {
		return Statement{}, err
	}

	quote := b.dialect.QuoteIdent
	clause, args := whereClause{where, whereNot}.render(quote)
	return Statement{
		Text:  "SELECT COUNT(*) FROM " + quote(table) + clause,
		Args:  args,
		Query: true,
	}, nil
}

// Insert compiles one VALUES tuple; several rows become a Batch. Every row
// must carry the same columns as the first.
func (b *Builder) Insert(ctx context.Context, table string, rows []core.Row) (Statement, error) {
	schema, err := b.introspector.Schema(ctx, table)
	if err != nil {
		return Statement{}, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return Statement{}, core.NewValidationError("data", "insert into %s carries no values", table)
	}

	columns := rows[0].Keys()
	for i, row := range rows[1:] {
		if !sameKeys(columns, row.Keys()) {
			return Statement{}, core.NewValidationError(fmt.Sprintf("data[%d]", i+1),
				"columns %v differ from the first row's %v", row.Keys(), columns)
		}
	}

	if err := checkColumns(schema, nil, nil, columns); err != nil {
		return Statement{}, err
	}
	if err := checkIdentifiers("table", table); err != nil {
		return Statement{}, err
	}
	if err := checkIdentifiers("column", columns...); err != nil {
		return Statement{}, err
	}

	quote := b.dialect.QuoteIdent
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	statement := Statement{
		Text: fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(table), quoteAll(columns, quote), placeholders),
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		values[i] = make([]any, len(columns))
		for j, column := range columns {
			values[i][j] = row[column]
		}
	}
	if len(values) == 1 {
		statement.Args = values[0]
	} else {
		statement.Batch = values
	}
	return statement, nil
}

func sameKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (b *Builder) Update(ctx context.Context, table string, data core.Row, where, whereNot core.Condition) (Statement, error) {
	if _, err := b.schemaFor(ctx, table, where, whereNot, data.Keys()); err != nil {
		return Statement{}, err
	}
	if len(data) == 0 {
		return Statement{}, core.NewValidationError("data", "update of %s sets no columns", table)
	}
	clause := whereClause{where, whereNot}
	if clause.empty() {
		return Statement{}, core.NewValidationError("where", "update of %s needs at least one condition", table)
	}

	quote := b.dialect.QuoteIdent
	set, args := setClause{data}.render(quote)
	test, whereArgs := clause.render(quote)
	return Statement{
		Text: "UPDATE " + quote(table) + set + test,
		Args: append(args, whereArgs...),
	}, nil
}

func (b *Builder) Delete(ctx context.Context, table string, where, whereNot core.Condition) (Statement, error) {
	if _, err := b.schemaFor(ctx, table, where, whereNot, nil); err != nil {
		return Statement{}, err
	}
	clause := whereClause{where, whereNot}
	if clause.empty() {
		return Statement{}, core.NewValidationError("where", "delete from %s needs at least one condition", table)
	}

	quote := b.dialect.QuoteIdent
	test, args := clause.render(quote)
	return Statement{
		Text: "DELETE FROM " + quote(table) + test,
		Args: args,
	}, nil
}

// columnDefinition renders name type [NOT NULL] [DEFAULT literal] [extra].
func (b *Builder) columnDefinition(column core.ColumnSpec) (string, error) {
	field := "column " + column.Field
	if err := checkIdentifiers("column", column.Field); err != nil {
		return "", err
	}
	if !sql.IsColumnType(column.Type) {
		return "", core.NewValidationError(field, "invalid type %q", column.Type)
	}

	parts := []string{b.dialect.QuoteIdent(column.Field), column.Type}
	if !column.Nullable() {
		parts = append(parts, "NOT NULL")
	}
	if column.HasDefault() {
		if !sql.IsDefaultLiteral(column.Default) {
			return "", core.NewValidationError(field, "default %q is not a single literal", column.Default)
		}
		parts = append(parts, "DEFAULT "+column.Default)
	}
	extra := b.dialect.ColumnExtra(column.Extra)
	if !sql.IsColumnExtra(extra) {
		return "", core.NewValidationError(field, "invalid extra %q", column.Extra)
	}
	if extra != "" {
		parts = append(parts, extra)
	}
	return strings.Join(parts, " "), nil
}

// CreateTable renders one table. Columns with Key PRI form the primary key,
// in column order.
func (b *Builder) CreateTable(config op.TableConfig) (Statement, error) {
	if err := checkIdentifiers("table", config.Name); err != nil {
		return Statement{}, err
	}
	if len(config.Columns) == 0 {
		return Statement{}, core.NewValidationError("tableconfigs", "table %s has no columns", config.Name)
	}

	seen := make(map[string]bool, len(config.Columns))
	definitions := make([]string, 0, len(config.Columns)+1)
	for _, column := range config.Columns {
		if seen[column.Field] {
			return Statement{}, core.NewValidationError("tableconfigs", "column %s appears twice in %s", column.Field, config.Name)
		}
		seen[column.Field] = true

		definition, err := b.columnDefinition(column)
		if err != nil {
			return Statement{}, err
		}
		definitions = append(definitions, definition)
	}

	quote := b.dialect.QuoteIdent
	if keys := config.PrimaryKeys(); len(keys) > 0 {
		definitions = append(definitions, "PRIMARY KEY ("+quoteAll(keys, quote)+")")
	}

	return Statement{
		Text: fmt.Sprintf("CREATE TABLE %s (%s)", quote(config.Name), strings.Join(definitions, ", ")),
	}, nil
}

// AlterTable drops columns, then adds columns. Stores that cannot skip an
// existing column themselves have it skipped here, so replaying an ALTER is
// harmless. Stores with CombinedAlter get a single statement.
func (b *Builder) AlterTable(ctx context.Context, table string, add []core.ColumnSpec, drop []string) ([]Statement, error) {
	if len(add) == 0 && len(drop) == 0 {
		return nil, core.NewValidationError("alter table", "nothing to add or drop in %s", table)
	}

	schema, err := b.schemaFor(ctx, table, nil, nil, drop)
	if err != nil {
		return nil, err
	}

	dropped := make(map[string]bool, len(drop))
	for _, column := range drop {
		dropped[column] = true
	}

	quote := b.dialect.QuoteIdent
	var actions []string
	for _, column := range drop {
		actions = append(actions, "DROP COLUMN "+quote(column))
	}
	for _, column := range add {
		definition, err := b.columnDefinition(column)
		if err != nil {
			return nil, err
		}
		switch {
		case b.dialect.AddColumnIfNotExists():
			actions = append(actions, "ADD COLUMN IF NOT EXISTS "+definition)
		case schema.HasColumn(column.Field) && !dropped[column.Field]:
			continue
		default:
			actions = append(actions, "ADD COLUMN "+definition)
		}
	}

	prefix := "ALTER TABLE " + quote(table) + " "
	if len(actions) == 0 {
		return nil, nil
	}
	if b.dialect.CombinedAlter() {
		return []Statement{{Text: prefix + strings.Join(actions, ", ")}}, nil
	}

	statements := make([]Statement, len(actions))
	for i, action := range actions {
		statements[i] = Statement{Text: prefix + action}
	}
	return statements, nil
}

func (b *Builder) DropTable(ctx context.Context, table string) (Statement, error) {
	ok, err := b.introspector.HasTable(ctx, table)
	if err != nil {
		return Statement{}, err
	}
	if !ok {
		return Statement{}, core.NewTableNotFound(table)
	}
	if err := checkIdentifiers("table", table); err != nil {
		return Statement{}, err
	}
	return Statement{Text: "DROP TABLE " + b.dialect.QuoteIdent(table)}, nil
}
