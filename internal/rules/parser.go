package rules

import (
	"slices"
	"strings"

	"github.com/shaiso/Extract/internal/domain"
)

// Predicate — скомпилированное условие правила.
// Eval — чистая функция: без побочных эффектов и паник.
type Predicate interface {
	Eval(r *domain.Request) bool
}

// Operator — оператор сравнения поля со значением.
type Operator string

const (
	OpEquals     Operator = "=="
	OpNotEquals  Operator = "!="
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startswith"
	OpEndsWith   Operator = "endswith"
	OpIn         Operator = "in"
)

// Compile разбирает текст предиката.
// Пустой текст компилируется в условие «всегда истинно».
func Compile(src string) (Predicate, error) {
	if strings.TrimSpace(src) == "" {
		return constPredicate(true), nil
	}

	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, newPredicateError(tok.pos, ErrSyntax, "unexpected %q", tok.text)
	}
	return expr, nil
}

// --- AST ---

type constPredicate bool

func (c constPredicate) Eval(*domain.Request) bool { return bool(c) }

type andPredicate []Predicate

func (a andPredicate) Eval(r *domain.Request) bool {
	for _, p := range a {
		if !p.Eval(r) {
			return false
		}
	}
	return true
}

type orPredicate []Predicate

func (o orPredicate) Eval(r *domain.Request) bool {
	for _, p := range o {
		if p.Eval(r) {
			return true
		}
	}
	return false
}

type notPredicate struct{ inner Predicate }

func (n notPredicate) Eval(r *domain.Request) bool { return !n.inner.Eval(r) }

// condition — (field, operator, value).
type condition struct {
	field  domain.FieldAccessor
	op     Operator
	values []string
}

func (c condition) Eval(r *domain.Request) bool {
	v := c.field(r)
	switch c.op {
	case OpEquals:
		return v == c.values[0]
	case OpNotEquals:
		return v != c.values[0]
	case OpContains:
		return strings.Contains(v, c.values[0])
	case OpStartsWith:
		return strings.HasPrefix(v, c.values[0])
	case OpEndsWith:
		return strings.HasSuffix(v, c.values[0])
	case OpIn:
		return slices.Contains(c.values, v)
	default:
		return false
	}
}

// --- parser ---

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

// keyword проверяет, что текущий токен — ключевое слово kw (без учёта регистра).
func (p *parser) keyword(kw string) bool {
	tok := p.peek()
	return tok.kind == tokIdent && strings.EqualFold(tok.text, kw)
}

func (p *parser) parseOr() (Predicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	terms := orPredicate{left}
	for p.keyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return terms, nil
}

func (p *parser) parseAnd() (Predicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	terms := andPredicate{left}
	for p.keyword("and") {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		terms = append(terms, right)
	}
	if len(terms) == 1 {
		return left, nil
	}
	return terms, nil
}

func (p *parser) parseUnary() (Predicate, error) {
	tok := p.peek()

	switch {
	case p.keyword("not"):
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notPredicate{inner: inner}, nil

	case tok.kind == tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, newPredicateError(closing.pos, ErrSyntax, "expected ')'")
		}
		return inner, nil

	case p.keyword("true"):
		p.next()
		return constPredicate(true), nil

	case p.keyword("false"):
		p.next()
		return constPredicate(false), nil

	case tok.kind == tokIdent:
		return p.parseCondition()

	default:
		return nil, newPredicateError(tok.pos, ErrSyntax, "expected condition, got %q", tok.text)
	}
}

func (p *parser) parseCondition() (Predicate, error) {
	fieldTok := p.next()
	accessor, ok := domain.LookupField(fieldTok.text)
	if !ok {
		return nil, newPredicateError(fieldTok.pos, ErrUnknownField, "unknown field %q", fieldTok.text)
	}

	opTok := p.next()
	var op Operator
	switch opTok.kind {
	case tokOp:
		op = Operator(opTok.text)
	case tokIdent:
		op = Operator(strings.ToLower(opTok.text))
	default:
		return nil, newPredicateError(opTok.pos, ErrSyntax, "expected operator after %q", fieldTok.text)
	}

	switch op {
	case OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith:
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return condition{field: accessor, op: op, values: []string{value}}, nil

	case OpIn:
		values, err := p.parseList()
		if err != nil {
			return nil, err
		}
		return condition{field: accessor, op: op, values: values}, nil

	default:
		return nil, newPredicateError(opTok.pos, ErrUnknownOperator, "unknown operator %q", opTok.text)
	}
}

// parseValue читает строку в кавычках или «голое» слово (числа, коды).
func (p *parser) parseValue() (string, error) {
	tok := p.next()
	if tok.kind == tokString || tok.kind == tokIdent {
		return tok.text, nil
	}
	return "", newPredicateError(tok.pos, ErrSyntax, "expected value")
}

// parseList читает ("a", "b", ...).
func (p *parser) parseList() ([]string, error) {
	if open := p.next(); open.kind != tokLParen {
		return nil, newPredicateError(open.pos, ErrSyntax, "expected '(' after in")
	}
	var values []string
	for {
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		values = append(values, value)

		tok := p.next()
		if tok.kind == tokRParen {
			return values, nil
		}
		if tok.kind != tokComma {
			return nil, newPredicateError(tok.pos, ErrSyntax, "expected ',' or ')'")
		}
	}
}
