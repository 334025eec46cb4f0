package sql

import "strings"

type Token struct {
	Type     TokenType
	Value    string
	Position int
}

type TokenType int

const (
	Identifier TokenType = iota
	QuotedIdentifier
	String
	Int
	Float
	Comma
	Semicolon
	ParenOpen
	ParenClose
	Plus
	Minus
	Wildcard
	Operator
	PrimaryKey
	Create
	Temporary
	TableIdentifier
	If
	Not
	Exists
	Constraint
	Unique
	Check
	Foreign
	Key
	Index
	Collate
	Asc
	Desc
	Null
	True
	False
	Default
	CurrentTime
	Select
	With
	Values
	Pragma
	Show
	Describe
	Explain
	Returning
	Insert
	Update
	Delete
	EOF
	Unknown
)

var punctuation = map[TokenType]string{
	Comma:      "Comma",
	Semicolon:  "Semicolon",
	ParenOpen:  "ParenOpen",
	ParenClose: "ParenClose",
	PrimaryKey: "PrimaryKey",
	EOF:        "EOF",
}

var literals = map[TokenType]string{
	Identifier:       "Identifier",
	QuotedIdentifier: "QuotedIdentifier",
	String:           "String",
	Int:              "Int",
	Float:            "Float",
	Unknown:          "Unknown",
}

func (token Token) String() string {
	if name, ok := punctuation[token.Type]; ok {
		return name
	}
	if name, ok := literals[token.Type]; ok {
		return name + "(" + token.Value + ")"
	}
	return "Keyword(" + token.Value + ")"
}

// IsName reports whether the token can name a table or column.
// Unquoted keywords that are not reserved in column position also count.
func (token Token) IsName() bool {
	switch token.Type {
	case Identifier, QuotedIdentifier, Key, Index, Temporary, Exists, Collate, Asc, Desc,
		Values, Pragma, Show, Describe, Explain, Returning, Insert, Update, Delete, With, CurrentTime:
		return true
	default:
		return false
	}
}

type Lexer struct {
	sql          string
	position     int
	readPosition int
	ch           byte
}

func NewLexer(sql string) *Lexer {
	lexer := &Lexer{sql: sql}
	lexer.readChar()
	return lexer
}

func (lexer *Lexer) readChar() {
	if lexer.readPosition >= len(lexer.sql) {
		lexer.ch = 0
	} else {
		lexer.ch = lexer.sql[lexer.readPosition]
	}
	lexer.position = lexer.readPosition
	lexer.readPosition++
}

func (lexer *Lexer) peekChar() byte {
	if lexer.readPosition >= len(lexer.sql) {
		return 0
	}
	return lexer.sql[lexer.readPosition]
}

func (lexer *Lexer) NextToken() Token {
	var token Token

	lexer.skipWhitespace()
	start := lexer.position

	switch lexer.ch {
	case ',':
		token = Token{Type: Comma, Value: ","}
	case ';':
		token = Token{Type: Semicolon, Value: ";"}
	case '(':
		token = Token{Type: ParenOpen, Value: "("}
	case ')':
		token = Token{Type: ParenClose, Value: ")"}
	case '+':
		token = Token{Type: Plus, Value: "+"}
	case '-':
		token = Token{Type: Minus, Value: "-"}
	case '*':
		token = Token{Type: Wildcard, Value: "*"}
	case 0:
		if lexer.position >= len(lexer.sql) {
			return Token{Type: EOF, Position: len(lexer.sql)}
		}
		token = Token{Type: Unknown, Value: string(lexer.ch)}
	case '\'':
		value, ok := lexer.readQuoted('\'', '\'')
		if !ok {
			return Token{Type: Unknown, Value: lexer.sql[start:], Position: start}
		}
		return Token{Type: String, Value: value, Position: start}
	case '"':
		return lexer.quotedIdentifier(start, '"', '"')
	case '`':
		return lexer.quotedIdentifier(start, '`', '`')
	case '[':
		return lexer.quotedIdentifier(start, '[', ']')
	default:
		if isOperator(lexer.ch) {
			return Token{Type: Operator, Value: lexer.readOperator(), Position: start}
		} else if isDigit(lexer.ch) || (lexer.ch == '.' && isDigit(lexer.peekChar())) {
			num := lexer.readNumber()
			if lexer.ch == '.' {
				lexer.readChar()
				decimal := lexer.readNumber()
				return Token{Type: Float, Value: num + "." + decimal + lexer.readExponent(), Position: start}
			}
			if exponent := lexer.readExponent(); exponent != "" {
				return Token{Type: Float, Value: num + exponent, Position: start}
			}
			return Token{Type: Int, Value: num, Position: start}
		} else if isLetter(lexer.ch) {
			literal := lexer.readIdentifier()
			if toUpper(literal) == "PRIMARY" {
				saved := *lexer
				lexer.skipWhitespace()
				if toUpper(lexer.readIdentifier()) == "KEY" {
					return Token{Type: PrimaryKey, Value: "PRIMARY KEY", Position: start}
				}
				*lexer = saved
				return Token{Type: Identifier, Value: literal, Position: start}
			}
			return Token{Type: lookupIdentifier(literal), Value: literal, Position: start}
		}
		token = Token{Type: Unknown, Value: string(lexer.ch)}
	}

	token.Position = start
	lexer.readChar()
	return token
}

func (lexer *Lexer) PeekToken() Token {
	saved := *lexer
	token := lexer.NextToken()
	*lexer = saved
	return token
}

func (lexer *Lexer) quotedIdentifier(start int, open, close byte) Token {
	value, ok := lexer.readQuoted(open, close)
	if !ok {
		return Token{Type: Unknown, Value: lexer.sql[start:], Position: start}
	}
	return Token{Type: QuotedIdentifier, Value: value, Position: start}
}

// skipWhitespace also skips -- line comments and /* */ block comments.
func (lexer *Lexer) skipWhitespace() {
	for {
		switch {
		case lexer.ch == ' ' || lexer.ch == '\t' || lexer.ch == '\n' || lexer.ch == '\r':
			lexer.readChar()
		case lexer.ch == '-' && lexer.peekChar() == '-':
			for lexer.ch != '\n' && lexer.ch != 0 {
				lexer.readChar()
			}
		case lexer.ch == '/' && lexer.peekChar() == '*':
			lexer.readChar()
			lexer.readChar()
			for !(lexer.ch == '*' && lexer.peekChar() == '/') && lexer.position < len(lexer.sql) {
				lexer.readChar()
			}
			lexer.readChar()
			lexer.readChar()
		default:
			return
		}
	}
}

func (lexer *Lexer) readIdentifier() string {
	position := lexer.position
	for isAlphaNumeric(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

// readQuoted reads up to the closing quote. A doubled closing quote is an escaped quote.
func (lexer *Lexer) readQuoted(open, close byte) (string, bool) {
	lexer.readChar() // skip opening quote
	var value []byte
	for {
		if lexer.position >= len(lexer.sql) {
			return "", false
		}
		if lexer.ch == close {
			if lexer.peekChar() == close && open == close {
				value = append(value, close)
				lexer.readChar()
				lexer.readChar()
				continue
			}
			lexer.readChar() // skip closing quote
			return string(value), true
		}
		value = append(value, lexer.ch)
		lexer.readChar()
	}
}

func (lexer *Lexer) readNumber() string {
	position := lexer.position
	for isDigit(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func (lexer *Lexer) readExponent() string {
	if lexer.ch != 'e' && lexer.ch != 'E' {
		return ""
	}
	next := lexer.peekChar()
	if !isDigit(next) && next != '+' && next != '-' {
		return ""
	}
	position := lexer.position
	lexer.readChar()
	if lexer.ch == '+' || lexer.ch == '-' {
		lexer.readChar()
	}
	lexer.readNumber()
	return lexer.sql[position:lexer.position]
}

func (lexer *Lexer) readOperator() string {
	position := lexer.position
	for isOperator(lexer.ch) {
		lexer.readChar()
	}
	return lexer.sql[position:lexer.position]
}

func isLetter(ch byte) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
}

func isAlphaNumeric(ch byte) bool {
	return isLetter(ch) || ch == '.' || ch == '$' || isDigit(ch)
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isOperator(ch byte) bool {
	return strings.IndexByte("=!<>|/%:", ch) >= 0
}

var keywords = map[string]TokenType{
	"CREATE":            Create,
	"TEMP":              Temporary,
	"TEMPORARY":         Temporary,
	"TABLE":             TableIdentifier,
	"IF":                If,
	"NOT":               Not,
	"EXISTS":            Exists,
	"CONSTRAINT":        Constraint,
	"UNIQUE":            Unique,
	"CHECK":             Check,
	"FOREIGN":           Foreign,
	"KEY":               Key,
	"INDEX":             Index,
	"FULLTEXT":          Index,
	"SPATIAL":           Index,
	"COLLATE":           Collate,
	"ASC":               Asc,
	"DESC":              Desc,
	"NULL":              Null,
	"TRUE":              True,
	"FALSE":             False,
	"DEFAULT":           Default,
	"CURRENT_TIMESTAMP": CurrentTime,
	"CURRENT_DATE":      CurrentTime,
	"CURRENT_TIME":      CurrentTime,
	"NOW":               CurrentTime,
	"LOCALTIMESTAMP":    CurrentTime,
	"SELECT":            Select,
	"WITH":              With,
	"VALUES":            Values,
	"PRAGMA":            Pragma,
	"SHOW":              Show,
	"DESCRIBE":          Describe,
	"EXPLAIN":           Explain,
	"RETURNING":         Returning,
	"INSERT":            Insert,
	"REPLACE":           Insert,
	"UPDATE":            Update,
	"DELETE":            Delete,
}

func lookupIdentifier(id string) TokenType {
	if tokenType, ok := keywords[toUpper(id)]; ok {
		return tokenType
	}
	return Identifier
}

// toUpper upper-cases ASCII letters, returning s itself when it has none.
func toUpper(s string) string {
	i := 0
	for i < len(s) && !('a' <= s[i] && s[i] <= 'z') {
		i++
	}
	if i == len(s) {
		return s
	}
	b := []byte(s)
	for ; i < len(b); i++ {
		if 'a' <= b[i] && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

func tokenize(sql string) []Token {
	lexer := NewLexer(sql)

	var tokens []Token

	for {
		token := lexer.NextToken()
		if token.Type == EOF {
			return append(tokens, token)
		}
		tokens = append(tokens, token)
	}
}
