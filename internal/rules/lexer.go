package rules

import (
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex разбивает предикат на токены.
// Идентификаторы: буквы, цифры, '_', '.', '-'. Строки: в одинарных или двойных кавычках,
// '\' экранирует следующий символ.
func lex(src string) ([]token, error) {
	var tokens []token
	runes := []rune(src)

	for i := 0; i < len(runes); {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++

		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++

		case r == ',':
			tokens = append(tokens, token{kind: tokComma, text: ",", pos: i})
			i++

		case r == '=' || r == '!':
			start := i
			i++
			if i < len(runes) && runes[i] == '=' {
				i++
			} else if r == '!' {
				return nil, newPredicateError(start, ErrSyntax, "expected '=' after '!'")
			}
			op := string(runes[start:i])
			if op == "=" {
				op = "=="
			}
			tokens = append(tokens, token{kind: tokOp, text: op, pos: start})

		case r == '"' || r == '\'':
			quote := r
			start := i
			i++
			var sb strings.Builder
			closed := false
			for i < len(runes) {
				c := runes[i]
				if c == '\\' && i+1 < len(runes) {
					sb.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if c == quote {
					closed = true
					i++
					break
				}
				sb.WriteRune(c)
				i++
			}
			if !closed {
				return nil, newPredicateError(start, ErrSyntax, "unterminated string")
			}
			tokens = append(tokens, token{kind: tokString, text: sb.String(), pos: start})

		case isIdentRune(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i]), pos: start})

		default:
			return nil, newPredicateError(i, ErrSyntax, "unexpected character %q", r)
		}
	}

	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' || r == '-'
}
