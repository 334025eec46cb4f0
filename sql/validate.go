package sql

import "strings"

// IsIdentifier reports whether name may be used as a table or column name.
// Only letters, digits, underscore and space are allowed, so a valid name can
// never close the quoting it is rendered in.
func IsIdentifier(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		if !isLetter(ch) && !isDigit(ch) && ch != ' ' {
			return false
		}
	}
	return true
}

// IsColumnType reports whether typ is a plausible column type such as
// "int(11)", "decimal(10, 2)" or "double precision".
func IsColumnType(typ string) bool {
	return isDeclaration(typ, false)
}

// IsColumnExtra reports whether extra is a plausible column attribute list
// such as "auto_increment" or "on update current_timestamp()".
func IsColumnExtra(extra string) bool {
	return isDeclaration(extra, true)
}

func isDeclaration(text string, allowEmpty bool) bool {
	if strings.TrimSpace(text) == "" {
		return allowEmpty
	}
	depth := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case isLetter(ch), isDigit(ch), ch == ' ', ch == ',':
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth < 0 {
				return false
			}
		default:
			return false
		}
	}
	return depth == 0
}

// IsDefaultLiteral reports whether text is exactly one literal value: an optionally
// signed number, a quoted string, NULL, TRUE, FALSE or a current-time keyword.
// One pair of enclosing parentheses is allowed. Strings may not contain a backslash.
func IsDefaultLiteral(text string) bool {
	tokens := tokenize(text)
	if len(tokens) >= 3 && tokens[0].Type == ParenOpen && tokens[len(tokens)-2].Type == ParenClose {
		tokens = append(tokens[1:len(tokens)-2:len(tokens)-2], tokens[len(tokens)-1])
	}

	i := 0
	if tokens[i].Type == Plus || tokens[i].Type == Minus {
		i++
		if tokens[i].Type != Int && tokens[i].Type != Float {
			return false
		}
	}

	switch tokens[i].Type {
	case String:
		// MySQL reads \' as an escaped quote, which would end the literal
		// somewhere else than this lexer does.
		if strings.IndexByte(tokens[i].Value, '\\') >= 0 {
			return false
		}
		i++
	case Int, Float, Null, True, False:
		i++
	case CurrentTime:
		i++
		if tokens[i].Type == ParenOpen && tokens[i+1].Type == ParenClose {
			i += 2
		}
	default:
		return false
	}
	return tokens[i].Type == EOF
}
