package sql

import "fmt"

// CreateTableStatement is what ParseCreateTable extracts from a table's creation text.
type CreateTableStatement struct {
	Table       string
	Columns     []string
	PrimaryKeys []string
}

// ParseError reports creation text that does not match the CREATE TABLE grammar.
type ParseError struct {
	Position int
	Message  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Position, e.Message)
}

type Parser struct {
	lexer *Lexer
}

func NewParser(sql string) *Parser {
	lexer := NewLexer(sql)
	return &Parser{lexer: lexer}
}

// ParseCreateTable extracts the column names and primary key of a CREATE TABLE statement.
//
// The accepted grammar is
//
//	create  := CREATE [TEMP|TEMPORARY] TABLE [IF NOT EXISTS] name '(' element {',' element} ')' rest
//	element := [CONSTRAINT name] PRIMARY KEY [name] '(' keycol {',' keycol} ')' tail
//	         | [CONSTRAINT name] (UNIQUE|CHECK|FOREIGN|KEY|INDEX) tail
//	         | name tail
//	keycol  := name ['(' int ')'] [COLLATE name] [ASC|DESC]
//	tail    := tokens with balanced parentheses up to the next top-level ',' or ')'
//
// where name is a bare word or a "double", `backtick` or [bracket] quoted identifier.
// A table-level PRIMARY KEY clause lists the key in declaration order; otherwise
// the column whose definition carries PRIMARY KEY is the key.
func ParseCreateTable(sql string) (CreateTableStatement, error) {
	return NewParser(sql).ParseCreateTable()
}

func (parser *Parser) ParseCreateTable() (CreateTableStatement, error) {
	var statement CreateTableStatement

	if _, err := parser.expect(Create, "CREATE"); err != nil {
		return statement, err
	}
	if parser.lexer.PeekToken().Type == Temporary {
		parser.lexer.NextToken()
	}
	if _, err := parser.expect(TableIdentifier, "TABLE"); err != nil {
		return statement, err
	}
	if parser.lexer.PeekToken().Type == If {
		parser.lexer.NextToken()
		if _, err := parser.expect(Not, "NOT"); err != nil {
			return statement, err
		}
		if _, err := parser.expect(Exists, "EXISTS"); err != nil {
			return statement, err
		}
	}

	name, err := parser.expectName("table name")
	if err != nil {
		return statement, err
	}
	statement.Table = name

	if _, err := parser.expect(ParenOpen, "'(' after table name"); err != nil {
		return statement, err
	}

	var tableKey, inlineKey []string
	tableKeyDeclared := false

	for {
		token := parser.lexer.NextToken()
		if token.Type == Constraint {
			if _, err := parser.expectName("constraint name"); err != nil {
				return statement, err
			}
			token = parser.lexer.NextToken()
		}

		var terminator Token
		switch {
		case token.Type == PrimaryKey:
			if tableKeyDeclared {
				return statement, &ParseError{Position: token.Position, Message: "more than one table-level PRIMARY KEY"}
			}
			tableKeyDeclared = true
			tableKey, err = parser.parseKeyColumns()
			if err != nil {
				return statement, err
			}
			terminator, _, err = parser.skipTail()

		case token.Type == Unique || token.Type == Check || token.Type == Foreign || token.Type == Key || token.Type == Index:
			terminator, _, err = parser.skipTail()

		case token.IsName():
			statement.Columns = append(statement.Columns, token.Value)
			var primary bool
			terminator, primary, err = parser.skipTail()
			if primary {
				inlineKey = append(inlineKey, token.Value)
			}

		case token.Type == ParenClose && len(statement.Columns) == 0:
			return statement, &ParseError{Position: token.Position, Message: "empty column list"}

		default:
			return statement, parser.unexpected(token, "column definition or table constraint")
		}
		if err != nil {
			return statement, err
		}

		if terminator.Type == ParenClose {
			break
		}
	}

	if len(statement.Columns) == 0 {
		return statement, &ParseError{Position: 0, Message: "no column definitions"}
	}
	if len(inlineKey) > 1 {
		return statement, &ParseError{Message: fmt.Sprintf("more than one column declared PRIMARY KEY: %v", inlineKey)}
	}
	if tableKeyDeclared && len(inlineKey) > 0 {
		return statement, &ParseError{Message: "PRIMARY KEY declared on both a column and the table"}
	}

	if tableKeyDeclared {
		statement.PrimaryKeys = tableKey
	} else {
		statement.PrimaryKeys = inlineKey
	}
	return statement, nil
}

// parseKeyColumns reads the parenthesised column list that follows PRIMARY KEY.
func (parser *Parser) parseKeyColumns() ([]string, error) {
	// MySQL allows an index name or type between KEY and the list.
	for {
		next := parser.lexer.PeekToken()
		if next.Type == ParenOpen || !next.IsName() {
			break
		}
		parser.lexer.NextToken()
	}

	if _, err := parser.expect(ParenOpen, "'(' after PRIMARY KEY"); err != nil {
		return nil, err
	}

	var columns []string
	for {
		name, err := parser.expectName("key column")
		if err != nil {
			return nil, err
		}
		columns = append(columns, name)

		token := parser.lexer.NextToken()
		if token.Type == ParenOpen {
			if _, err := parser.expect(Int, "prefix length"); err != nil {
				return nil, err
			}
			if _, err := parser.expect(ParenClose, "')' after prefix length"); err != nil {
				return nil, err
			}
			token = parser.lexer.NextToken()
		}
		if token.Type == Collate {
			if _, err := parser.expectName("collation"); err != nil {
				return nil, err
			}
			token = parser.lexer.NextToken()
		}
		if token.Type == Asc || token.Type == Desc {
			token = parser.lexer.NextToken()
		}

		switch token.Type {
		case Comma:
			continue
		case ParenClose:
			return columns, nil
		default:
			return nil, parser.unexpected(token, "',' or ')' in PRIMARY KEY column list")
		}
	}
}

// skipTail consumes the rest of an element and returns the ',' or ')' that ends it.
// It also reports whether PRIMARY KEY appeared at the element's top level.
func (parser *Parser) skipTail() (Token, bool, error) {
	depth := 0
	primary := false
	for {
		token := parser.lexer.NextToken()
		switch token.Type {
		case EOF:
			return token, false, &ParseError{Position: token.Position, Message: "unbalanced parentheses: missing ')'"}
		case Unknown:
			if len(token.Value) > 1 {
				return token, false, &ParseError{Position: token.Position, Message: "unterminated quoted text"}
			}
		case ParenOpen:
			depth++
		case ParenClose:
			if depth == 0 {
				return token, primary, nil
			}
			depth--
		case Comma:
			if depth == 0 {
				return token, primary, nil
			}
		case PrimaryKey:
			if depth == 0 {
				primary = true
			}
		}
	}
}

func (parser *Parser) expect(tokenType TokenType, what string) (Token, error) {
	token := parser.lexer.NextToken()
	if token.Type != tokenType {
		return token, parser.unexpected(token, what)
	}
	return token, nil
}

func (parser *Parser) expectName(what string) (string, error) {
	token := parser.lexer.NextToken()
	if !token.IsName() {
		return "", parser.unexpected(token, what)
	}
	return token.Value, nil
}

func (parser *Parser) unexpected(token Token, what string) error {
	if token.Type == EOF {
		return &ParseError{Position: token.Position, Message: "expected " + what + ", got end of input"}
	}
	return &ParseError{Position: token.Position, Message: fmt.Sprintf("expected %s, got %q", what, token.Value)}
}
