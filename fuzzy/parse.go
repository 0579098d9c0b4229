package fuzzy

import (
	"strings"
	"unicode"

	"github.com/teranos/scholar/errors"
)

// ErrSyntax is returned by ParseExpr for malformed antecedents.
var ErrSyntax = errors.New("syntax error")

// ParseExpr parses a textual antecedent such as
//
//	gpa is high and (income is low or financial is weak)
//
// Keywords are case-insensitive. "and" binds tighter than "or".
func ParseExpr(src string) (Expr, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.done() {
		return nil, errors.Wrapf(ErrSyntax, "unexpected %q at token %d", p.peek(), p.pos+1)
	}
	return e, nil
}

type parser struct {
	toks []string
	pos  int
}

func (p *parser) done() bool   { return p.pos >= len(p.toks) }
func (p *parser) peek() string { return p.toks[p.pos] }

func (p *parser) accept(keyword string) bool {
	if !p.done() && strings.EqualFold(p.peek(), keyword) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr() (Expr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []Expr{first}
	for p.accept("or") {
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		if nested, ok := next.(Or); ok {
			operands = append(operands, nested...)
		} else {
			operands = append(operands, next)
		}
	}
	if len(operands) == 1 {
		return first, nil
	}
	return Or(operands), nil
}

func (p *parser) parseAnd() (Expr, error) {
	first, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	operands := []Expr{first}
	for p.accept("and") {
		next, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		if nested, ok := next.(And); ok {
			operands = append(operands, nested...)
		} else {
			operands = append(operands, next)
		}
	}
	if len(operands) == 1 {
		return first, nil
	}
	return And(operands), nil
}

func (p *parser) parseFactor() (Expr, error) {
	if p.done() {
		return nil, errors.Wrap(ErrSyntax, "unexpected end of expression")
	}
	if p.accept("(") {
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.accept(")") {
			return nil, errors.Wrap(ErrSyntax, "missing closing parenthesis")
		}
		return e, nil
	}

	variable := p.peek()
	if !isIdent(variable) || isKeyword(variable) {
		return nil, errors.Wrapf(ErrSyntax, "expected variable name, got %q", variable)
	}
	p.pos++
	if !p.accept("is") {
		return nil, errors.Wrapf(ErrSyntax, "expected \"is\" after %q", variable)
	}
	if p.done() {
		return nil, errors.Wrapf(ErrSyntax, "expected term after \"%s is\"", variable)
	}
	term := p.peek()
	if !isIdent(term) || isKeyword(term) {
		return nil, errors.Wrapf(ErrSyntax, "expected term name, got %q", term)
	}
	p.pos++
	return Is(variable, term), nil
}

func tokenize(src string) ([]string, error) {
	var toks []string
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(' || r == ')':
			toks = append(toks, string(r))
			i++
		case isIdentRune(r):
			start := i
			for i < len(runes) && isIdentRune(runes[i]) {
				i++
			}
			toks = append(toks, string(runes[start:i]))
		default:
			return nil, errors.Wrapf(ErrSyntax, "unexpected character %q at offset %d", r, i)
		}
	}
	if len(toks) == 0 {
		return nil, errors.Wrap(ErrSyntax, "empty expression")
	}
	return toks, nil
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}

func isIdent(tok string) bool {
	return tok != "(" && tok != ")"
}

func isKeyword(tok string) bool {
	switch strings.ToLower(tok) {
	case "is", "and", "or":
		return true
	}
	return false
}
