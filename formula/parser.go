package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errUnterminated = errors.New("unterminated string literal")

// Parse builds the AST of a formula.
//
//	expr    = or
//	or      = and { ("||" | OR) and }
//	and     = cmp { ("&&" | AND) cmp }
//	cmp     = add [ ("=="|"="|"!="|"<>"|"<"|"<="|">"|">=") add ]
//	add     = mul { ("+"|"-") mul }
//	mul     = unary { ("*"|"/"|"%") unary }
//	unary   = ("-" | "!" | NOT) unary | primary
//	primary = number | string | true | false | null | field | agg | call | "(" expr ")"
//	agg     = AGGFUNC "(" field [ "in" field ] [ "," ["-"] number ] ")"
//	call    = IDENT "(" [ expr { "," expr } ] ")"
func Parse(src string) (Node, error) {
	if strings.TrimSpace(src) == "" {
		return nil, &SyntaxError{Pos: 0, Msg: "empty formula"}
	}
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return n, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) peekAt(offset int) token {
	if p.pos+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+offset]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isOp(texts ...string) bool {
	t := p.peek()
	if t.kind != tokOp {
		return false
	}
	for _, s := range texts {
		if t.text == s {
			return true
		}
	}
	return false
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && strings.EqualFold(t.text, word)
}

func (p *parser) expectOp(text string) error {
	if !p.isOp(text) {
		t := p.peek()
		if t.kind == tokEOF {
			return p.errorf(t, "expected %q, found end of formula", text)
		}
		return p.errorf(t, "expected %q, found %q", text, t.text)
	}
	p.next()
	return nil
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("||") || p.isKeyword("or") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "||", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.isOp("&&") || p.isKeyword("and") {
		p.next()
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "&&", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.isOp("==", "=", "!=", "<>", "<", "<=", ">", ">=") {
		op := p.next().text
		switch op {
		case "=":
			op = "=="
		case "<>":
			op = "!="
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
		if p.isOp("==", "=", "!=", "<>", "<", "<=", ">", ">=") {
			return nil, p.errorf(p.peek(), "comparison operators cannot be chained")
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+", "-") {
		op := p.next().text
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*", "/", "%") {
		op := p.next().text
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Node, error) {
	if p.isOp("-", "!") || p.isKeyword("not") {
		op := p.next().text
		if op != "-" {
			op = "!"
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := x.(*NumberLit); ok && op == "-" {
			return &NumberLit{Value: -lit.Value}, nil
		}
		return &Unary{Op: op, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid number %q", t.text)
		}
		return &NumberLit{Value: f}, nil

	case tokString:
		p.next()
		return &StringLit{Value: t.text}, nil

	case tokField:
		p.next()
		return &FieldRef{Name: t.text}, nil

	case tokIdent:
		switch strings.ToLower(t.text) {
		case "true":
			p.next()
			return &BoolLit{Value: true}, nil
		case "false":
			p.next()
			return &BoolLit{Value: false}, nil
		case "null":
			p.next()
			return &NullLit{}, nil
		}
		if p.peekAt(1).kind != tokOp || p.peekAt(1).text != "(" {
			return nil, p.errorf(t, "unknown identifier %q (field names must be written as {name})", t.text)
		}
		name := strings.ToUpper(t.text)
		if IsAggregateFunc(name) && p.looksLikeAggregate() {
			return p.parseAggregate(name)
		}
		return p.parseCall(name)

	case tokOp:
		if t.text == "(" {
			p.next()
			n, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return n, nil
		}
		return nil, p.errorf(t, "unexpected %q", t.text)
	}
	return nil, p.errorf(t, "unexpected end of formula")
}

// looksLikeAggregate is called with the function name as the current token.
// MIN({a}) is an aggregate while MIN({a}, {b}) is the scalar minimum.
func (p *parser) looksLikeAggregate() bool {
	if p.peekAt(2).kind != tokField {
		return false
	}
	after := p.peekAt(3)
	if after.kind == tokIdent && strings.EqualFold(after.text, "in") {
		return true
	}
	if after.kind != tokOp {
		return false
	}
	switch after.text {
	case ")":
		return true
	case ",":
		return aggregateTakesParam(strings.ToUpper(p.peek().text))
	}
	return false
}

func (p *parser) parseAggregate(name string) (Node, error) {
	start := p.next()
	p.next() // (
	agg := &Aggregate{Func: name, Field: p.next().text}

	if p.isKeyword("in") {
		p.next()
		g := p.next()
		if g.kind != tokField {
			return nil, p.errorf(g, "expected {group field} after 'in' in %q", name)
		}
		agg.GroupBy = g.text
	}

	if aggregateTakesParam(name) {
		if err := p.expectOp(","); err != nil {
			return nil, err
		}
		sign := 1.0
		if p.isOp("-") {
			p.next()
			sign = -1
		}
		num := p.next()
		if num.kind != tokNumber {
			return nil, p.errorf(num, "%q expects a numeric parameter", name)
		}
		f, err := strconv.ParseFloat(num.text, 64)
		if err != nil {
			return nil, p.errorf(num, "invalid number %q", num.text)
		}
		agg.Param = sign * f
		agg.HasParam = true
	}

	if err := p.expectOp(")"); err != nil {
		return nil, &SyntaxError{Pos: start.pos, Msg: "malformed aggregate " + name + ": " + err.Error()}
	}
	return agg, nil
}

func (p *parser) parseCall(name string) (Node, error) {
	p.next() // name
	p.next() // (
	call := &Call{Name: name}
	if p.isOp(")") {
		p.next()
		return call, nil
	}
	for {
		arg, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.isOp(",") {
			p.next()
			continue
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return call, nil
	}
}
