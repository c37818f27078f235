package formula

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

const (
	fieldsVar = "fields"
	aggsVar   = "aggs"

	// DefaultCostLimit bounds the work a single evaluation may perform.
	DefaultCostLimit = 1000000
)

// Env compiles formulas into sandboxed programs. An Env is immutable once
// created and safe for concurrent use.
type Env struct {
	env       *cel.Env
	costLimit uint64
}

// Option configures an Env.
type Option func(*Env)

// WithCostLimit overrides DefaultCostLimit.
func WithCostLimit(limit uint64) Option {
	return func(e *Env) {
		if limit > 0 {
			e.costLimit = limit
		}
	}
}

// NewEnv creates the CEL environment holding the function table. Formulas see
// exactly two variables: the substituted fields and the resolved aggregates.
func NewEnv(opts ...Option) (*Env, error) {
	envOpts := []cel.EnvOption{
		cel.ClearMacros(),
		cel.Variable(fieldsVar, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(aggsVar, cel.MapType(cel.StringType, cel.DynType)),
	}
	envOpts = append(envOpts, celFunctions()...)

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Env{env: env, costLimit: DefaultCostLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Program is a compiled formula.
type Program struct {
	Source     string
	Root       Node
	Fields     []string
	Aggregates []*Aggregate
	prog       cel.Program
}

// CompileString parses and compiles src.
func (e *Env) CompileString(src string) (*Program, error) {
	root, err := Parse(src)
	if err != nil {
		return nil, err
	}
	prog, err := e.Compile(root)
	if err != nil {
		return nil, err
	}
	prog.Source = src
	return prog, nil
}

// Compile lowers an AST onto CEL and type-checks it.
func (e *Env) Compile(root Node) (*Program, error) {
	var b strings.Builder
	if err := lower(root, &b); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(b.String())
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	prog, err := e.env.Program(ast, cel.CostLimit(e.costLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}

	return &Program{
		Root:       root,
		Fields:     Fields(root),
		Aggregates: Aggregates(root),
		prog:       prog,
	}, nil
}

// Eval runs the program. Field values must be float64, string, bool or nil;
// aggs is keyed by Aggregate.Key. The result is float64, string, bool or nil.
func (p *Program) Eval(fields, aggs map[string]any) (any, error) {
	if fields == nil {
		fields = map[string]any{}
	}
	if aggs == nil {
		aggs = map[string]any{}
	}
	out, _, err := p.prog.Eval(map[string]any{
		fieldsVar: fields,
		aggsVar:   aggs,
	})
	if err != nil {
		return nil, err
	}
	switch out.(type) {
	case types.Double, types.Int, types.Uint, types.String, types.Bool, types.Null:
		return native(out), nil
	}
	return nil, fmt.Errorf("unsupported result type %s", out.Type().TypeName())
}

func lower(n Node, b *strings.Builder) error {
	switch x := n.(type) {
	case *NumberLit:
		b.WriteString(doubleLiteral(x.Value))
	case *StringLit:
		b.WriteString(strconv.Quote(x.Value))
	case *BoolLit:
		b.WriteString(strconv.FormatBool(x.Value))
	case *NullLit:
		b.WriteString("null")
	case *FieldRef:
		b.WriteString(fieldsVar + "[" + strconv.Quote(x.Name) + "]")
	case *Aggregate:
		b.WriteString(aggsVar + "[" + strconv.Quote(x.Key()) + "]")
	case *Unary:
		b.WriteString("(" + x.Op)
		if err := lower(x.X, b); err != nil {
			return err
		}
		b.WriteString(")")
	case *Binary:
		if x.Op == "%" {
			return lowerCall("MOD", []Node{x.L, x.R}, false, b)
		}
		b.WriteString("(")
		if err := lower(x.L, b); err != nil {
			return err
		}
		b.WriteString(" " + x.Op + " ")
		if err := lower(x.R, b); err != nil {
			return err
		}
		b.WriteString(")")
	case *Call:
		return lowerFuncCall(x, b)
	default:
		return fmt.Errorf("unsupported expression node %T", n)
	}
	return nil
}

func lowerFuncCall(c *Call, b *strings.Builder) error {
	spec, ok := scalarFuncs[c.Name]
	if !ok {
		if IsAggregateFunc(c.Name) {
			return fmt.Errorf("%s expects a single {field} argument, optionally grouped with 'in {field}'", c.Name)
		}
		return fmt.Errorf("unknown function %q", c.Name)
	}
	if len(c.Args) < spec.minArgs || (spec.maxArgs >= 0 && len(c.Args) > spec.maxArgs) {
		return fmt.Errorf("%s called with %d arguments", c.Name, len(c.Args))
	}

	if c.Name == "IF" {
		b.WriteString("(")
		if err := lower(c.Args[0], b); err != nil {
			return err
		}
		b.WriteString(" ? dyn(")
		if err := lower(c.Args[1], b); err != nil {
			return err
		}
		b.WriteString(") : dyn(")
		if err := lower(c.Args[2], b); err != nil {
			return err
		}
		b.WriteString("))")
		return nil
	}
	return lowerCall(c.Name, c.Args, spec.list, b)
}

func lowerCall(name string, args []Node, list bool, b *strings.Builder) error {
	b.WriteString(name + "(")
	if list {
		b.WriteString("[")
	}
	for i, arg := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		if list {
			b.WriteString("dyn(")
		}
		if err := lower(arg, b); err != nil {
			return err
		}
		if list {
			b.WriteString(")")
		}
	}
	if list {
		b.WriteString("]")
	}
	b.WriteString(")")
	return nil
}

// doubleLiteral renders f so CEL reads it as a double, never an int.
func doubleLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	if f < 0 {
		return "(" + s + ")"
	}
	return s
}
