package sql

// ReturnsRows reports whether a statement produces a result set.
// It looks at the leading keyword and at any top-level RETURNING clause.
func ReturnsRows(sql string) bool {
	lexer := NewLexer(sql)

	first := lexer.NextToken()
	for first.Type == ParenOpen {
		first = lexer.NextToken()
	}

	switch first.Type {
	case Select, Values, Pragma, Show, Describe, Desc, Explain:
		return true
	case With:
		// WITH ... SELECT reads; WITH ... INSERT/UPDATE/DELETE only reads with RETURNING.
		return !writesWithoutReturning(lexer)
	case Insert, Update, Delete:
		return hasReturning(lexer)
	default:
		return false
	}
}

func hasReturning(lexer *Lexer) bool {
	for {
		token := lexer.NextToken()
		switch token.Type {
		case EOF:
			return false
		case Returning:
			return true
		}
	}
}

func writesWithoutReturning(lexer *Lexer) bool {
	depth := 0
	writes := false
	for {
		token := lexer.NextToken()
		switch token.Type {
		case EOF:
			return writes
		case ParenOpen:
			depth++
		case ParenClose:
			depth--
		case Insert, Update, Delete:
			if depth == 0 {
				writes = true
			}
		case Returning:
			return false
		}
	}
}

// SplitStatements splits a script on top-level semicolons, honouring quotes and comments.
func SplitStatements(script string) []string {
	var statements []string
	lexer := NewLexer(script)
	start := -1
	for {
		token := lexer.NextToken()
		if token.Type == EOF || token.Type == Semicolon {
			if start >= 0 {
				statements = append(statements, script[start:token.Position])
			}
			if token.Type == EOF {
				return statements
			}
			start = -1
			continue
		}
		if start < 0 {
			start = token.Position
		}
	}
}
