package formula

import (
	"fmt"
	"strconv"
)

// Node is a parsed formula expression.
type Node interface {
	node()
}

type NumberLit struct{ Value float64 }

type StringLit struct{ Value string }

type BoolLit struct{ Value bool }

type NullLit struct{}

// FieldRef is a `{name}` reference to a record field.
type FieldRef struct{ Name string }

// Aggregate is a statistic over a field, optionally grouped:
// `AVG({Price})`, `AVG({Price} in {Sector})`, `TRIM_AVG({Price}, 0.2)`.
type Aggregate struct {
	Func     string
	Field    string
	GroupBy  string
	Param    float64
	HasParam bool
}

// Call is a scalar function call from the function table.
type Call struct {
	Name string
	Args []Node
}

type Unary struct {
	Op string
	X  Node
}

type Binary struct {
	Op   string
	L, R Node
}

func (NumberLit) node() {}
func (StringLit) node() {}
func (BoolLit) node()   {}
func (NullLit) node()   {}
func (FieldRef) node()  {}
func (Aggregate) node() {}
func (Call) node()      {}
func (Unary) node()     {}
func (Binary) node()    {}

// Grouped reports whether the aggregate is partitioned by a group field.
func (a Aggregate) Grouped() bool { return a.GroupBy != "" }

// Key is the canonical text of the aggregate. Equal keys denote the same value.
func (a Aggregate) Key() string {
	s := a.Func + "({" + a.Field + "}"
	if a.GroupBy != "" {
		s += " in {" + a.GroupBy + "}"
	}
	if a.HasParam {
		s += ", " + strconv.FormatFloat(a.Param, 'f', -1, 64)
	}
	return s + ")"
}

func (a Aggregate) String() string { return a.Key() }

// Walk visits n and its children depth-first. Returning false from fn stops descent.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch x := n.(type) {
	case *Call:
		for _, arg := range x.Args {
			Walk(arg, fn)
		}
	case *Unary:
		Walk(x.X, fn)
	case *Binary:
		Walk(x.L, fn)
		Walk(x.R, fn)
	}
}

// Fields returns the distinct field references of n in first-seen order.
func Fields(n Node) []string {
	var out []string
	seen := make(map[string]bool)
	Walk(n, func(n Node) bool {
		if f, ok := n.(*FieldRef); ok && !seen[f.Name] {
			seen[f.Name] = true
			out = append(out, f.Name)
		}
		return true
	})
	return out
}

// NumericFields returns the distinct fields of n that are operands of
// arithmetic or ordering operators, or compared for equality against a
// numeric expression. Other references keep their raw value.
func NumericFields(n Node) []string {
	var out []string
	seen := make(map[string]bool)
	var visit func(n Node, numeric bool)
	visit = func(n Node, numeric bool) {
		switch x := n.(type) {
		case *FieldRef:
			if numeric && !seen[x.Name] {
				seen[x.Name] = true
				out = append(out, x.Name)
			}
		case *Unary:
			visit(x.X, x.Op == "-")
		case *Binary:
			operand := numericOps[x.Op]
			if x.Op == "==" || x.Op == "!=" {
				operand = isNumericExpr(x.L) || isNumericExpr(x.R)
			}
			visit(x.L, operand)
			visit(x.R, operand)
		case *Call:
			for _, arg := range x.Args {
				visit(arg, false)
			}
		}
	}
	visit(n, false)
	return out
}

var numericOps = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "%": true,
	"<": true, "<=": true, ">": true, ">=": true,
}

func isNumericExpr(n Node) bool {
	switch x := n.(type) {
	case *NumberLit, *Aggregate:
		return true
	case *Unary:
		return x.Op == "-"
	case *Binary:
		return numericOps[x.Op] && !orderingOp(x.Op)
	}
	return false
}

func orderingOp(op string) bool {
	return op == "<" || op == "<=" || op == ">" || op == ">="
}

// Aggregates returns the distinct aggregate calls of n in first-seen order.
func Aggregates(n Node) []*Aggregate {
	var out []*Aggregate
	seen := make(map[string]bool)
	Walk(n, func(n Node) bool {
		if a, ok := n.(*Aggregate); ok && !seen[a.Key()] {
			seen[a.Key()] = true
			out = append(out, a)
		}
		return true
	})
	return out
}

// SyntaxError reports a malformed formula.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}
