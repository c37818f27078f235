package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/liamcoop/derive/aggregate"
	"github.com/liamcoop/derive/dataset"
	"github.com/liamcoop/derive/formula"
	"github.com/liamcoop/derive/rules"
)

// evaluator computes one rule's output for one record. A nil value with a nil
// error is a data condition (missing input, zero denominator) rather than a
// failure.
type evaluator interface {
	eval(run *ruleRun, rec *dataset.Record) (any, error)
}

// ruleRun is the per-rule state threaded through evaluation.
type ruleRun struct {
	rule     *rules.Rule
	fields   *FieldSet
	aggs     *aggregate.Result
	warned   map[string]bool
	warnings []string
}

func newRuleRun(rule *rules.Rule, fields *FieldSet, aggs *aggregate.Result) *ruleRun {
	return &ruleRun{rule: rule, fields: fields, aggs: aggs, warned: make(map[string]bool)}
}

func (r *ruleRun) warnOnce(key, msg string) {
	if r.warned[key] {
		return
	}
	r.warned[key] = true
	r.warnings = append(r.warnings, msg)
}

// value looks up a field for a record. Fields the run does not know about
// resolve to nil with one warning per rule.
func (r *ruleRun) value(rec *dataset.Record, name string) (any, bool) {
	if !r.fields.Has(name) {
		r.warnOnce("field:"+name, fmt.Sprintf("field %q is not available at this point in the rule list", name))
		return nil, false
	}
	v, ok := rec.Value(name)
	if !ok {
		return nil, true
	}
	return dataset.Normalize(v), true
}

// fieldValues builds the fields variable for a program. With numeric set,
// numeric strings are coerced to numbers. degraded reports a nil or
// non-numeric input.
func (r *ruleRun) fieldValues(rec *dataset.Record, names []string, numeric bool) (values map[string]any, degraded bool) {
	values = make(map[string]any, len(names))
	for _, name := range names {
		v, _ := r.value(rec, name)
		if dataset.IsBlank(v) {
			values[name] = nil
			degraded = true
			continue
		}
		if numeric {
			if f, ok := dataset.ToNumber(v); ok {
				values[name] = f
				continue
			}
			degraded = true
		}
		values[name] = v
	}
	return values, degraded
}

// aggregateValues resolves every aggregate call for a record. Grouped calls
// use the record's own group key. Unavailable statistics resolve to nil.
func (r *ruleRun) aggregateValues(rec *dataset.Record, calls []*formula.Aggregate) (values map[string]any, unavailable bool) {
	values = make(map[string]any, len(calls))
	for _, a := range calls {
		key := ""
		if a.Grouped() {
			key = dataset.GroupKey(rec.Value(a.GroupBy))
		}
		f, ok := r.aggs.Resolve(a, key)
		if !ok {
			values[a.Key()] = nil
			unavailable = true
			r.warnOnce("agg:"+a.Key(), fmt.Sprintf("aggregate %s is unavailable for some records", a.Key()))
			continue
		}
		values[a.Key()] = f
	}
	return values, unavailable
}

// compileRule prepares the evaluator for a rule whose required parameters
// are present.
func compileRule(env *formula.Env, rule *rules.Rule) (evaluator, error) {
	switch rule.Type {
	case rules.TypeArithmetic:
		prog, err := env.CompileString(rule.Params.Formula)
		if err != nil {
			return nil, err
		}
		return &arithmeticRule{prog: prog}, nil
	case rules.TypeRatio:
		return &ratioRule{
			numerator:   fieldName(rule.Params.Numerator),
			denominator: fieldName(rule.Params.Denominator),
		}, nil
	case rules.TypeWeightedSum:
		weights, err := ParseWeights(rule.Params.Weights)
		if err != nil {
			return nil, err
		}
		return &weightedSumRule{weights: weights}, nil
	case rules.TypeText:
		prog, err := compileScalar(env, rule.Params.Formula)
		if err != nil {
			return nil, err
		}
		return &textRule{prog: prog}, nil
	case rules.TypeConditional:
		cond, err := compileScalar(env, rule.Params.Condition)
		if err != nil {
			return nil, fmt.Errorf("condition: %w", err)
		}
		whenTrue, err := compileScalar(env, rule.Params.TrueValue)
		if err != nil {
			return nil, fmt.Errorf("trueValue: %w", err)
		}
		whenFalse, err := compileScalar(env, rule.Params.FalseValue)
		if err != nil {
			return nil, fmt.Errorf("falseValue: %w", err)
		}
		return &conditionalRule{
			cond:      newBranchProgram(cond),
			whenTrue:  newBranchProgram(whenTrue),
			whenFalse: newBranchProgram(whenFalse),
		}, nil
	}
	return nil, fmt.Errorf("unknown rule type %q", rule.Type)
}

// compileScalar compiles a formula that may not use aggregates.
func compileScalar(env *formula.Env, src string) (*formula.Program, error) {
	prog, err := env.CompileString(src)
	if err != nil {
		return nil, err
	}
	if len(prog.Aggregates) > 0 {
		return nil, fmt.Errorf("%w: %s", errAggregateRequired, prog.Aggregates[0].Key())
	}
	return prog, nil
}

// fieldName accepts a field written bare or in braces.
func fieldName(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

type arithmeticRule struct {
	prog *formula.Program
}

func (a *arithmeticRule) eval(run *ruleRun, rec *dataset.Record) (any, error) {
	fields, degraded := run.fieldValues(rec, a.prog.Fields, true)
	aggs, unavailable := run.aggregateValues(rec, a.prog.Aggregates)
	missing := degraded || unavailable

	out, err := a.prog.Eval(fields, aggs)
	if err != nil {
		if missing {
			return nil, nil
		}
		return nil, err
	}

	switch v := out.(type) {
	case nil:
		return nil, nil
	case float64:
		if !finite(v) {
			return nil, fmt.Errorf("formula produced a non-finite number")
		}
		return v, nil
	}
	if missing {
		return nil, nil
	}
	return nil, fmt.Errorf("formula produced %T, want a number", out)
}

type ratioRule struct {
	numerator   string
	denominator string
}

func (r *ratioRule) eval(run *ruleRun, rec *dataset.Record) (any, error) {
	nv, _ := run.value(rec, r.numerator)
	dv, _ := run.value(rec, r.denominator)
	n, okN := dataset.ToNumber(nv)
	d, okD := dataset.ToNumber(dv)
	if !okN || !okD || d == 0 {
		return nil, nil
	}
	if q := n / d; finite(q) {
		return q, nil
	}
	return nil, nil
}

// Weight is one term of a weighted sum.
type Weight struct {
	Field  string
	Weight float64
}

// ParseWeights parses "field:weight, field:weight". Fields may be written bare
// or in braces; the last colon separates the weight.
func ParseWeights(s string) ([]Weight, error) {
	var out []Weight
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("empty weight entry in %q", s)
		}
		i := strings.LastIndex(part, ":")
		if i < 0 {
			return nil, fmt.Errorf("weight entry %q is not field:weight", part)
		}
		field := fieldName(part[:i])
		if field == "" {
			return nil, fmt.Errorf("weight entry %q has no field", part)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(part[i+1:]), 64)
		if err != nil || !finite(w) {
			return nil, fmt.Errorf("weight entry %q has an invalid weight", part)
		}
		out = append(out, Weight{Field: field, Weight: w})
	}
	return out, nil
}

type weightedSumRule struct {
	weights []Weight
}

func (w *weightedSumRule) eval(run *ruleRun, rec *dataset.Record) (any, error) {
	var sum float64
	for _, term := range w.weights {
		v, known := run.value(rec, term.Field)
		if !known {
			return nil, fmt.Errorf("field %q is not available", term.Field)
		}
		f, ok := dataset.ToNumber(v)
		if !ok {
			return nil, fmt.Errorf("field %q is missing or not numeric", term.Field)
		}
		sum += f * term.Weight
	}
	if !finite(sum) {
		return nil, fmt.Errorf("weighted sum is not finite")
	}
	return sum, nil
}

type textRule struct {
	prog *formula.Program
}

func (t *textRule) eval(run *ruleRun, rec *dataset.Record) (any, error) {
	fields, _ := run.fieldValues(rec, t.prog.Fields, false)
	out, err := t.prog.Eval(fields, nil)
	if err != nil {
		return nil, err
	}
	switch v := out.(type) {
	case nil, string:
		return v, nil
	case float64:
		if !finite(v) {
			return nil, fmt.Errorf("formula produced a non-finite number")
		}
		return v, nil
	}
	return nil, fmt.Errorf("text formula produced %T, want text or a number", out)
}

// branchProgram is a conditional expression with the fields it uses as numbers.
type branchProgram struct {
	prog    *formula.Program
	numeric map[string]bool
}

func newBranchProgram(prog *formula.Program) branchProgram {
	numeric := make(map[string]bool)
	for _, name := range formula.NumericFields(prog.Root) {
		numeric[name] = true
	}
	return branchProgram{prog: prog, numeric: numeric}
}

// eval runs the expression with raw field values, coercing only the fields
// used in arithmetic or numeric comparisons.
func (b branchProgram) eval(run *ruleRun, rec *dataset.Record) (any, error) {
	fields := make(map[string]any, len(b.prog.Fields))
	for _, name := range b.prog.Fields {
		v, _ := run.value(rec, name)
		if dataset.IsBlank(v) {
			fields[name] = nil
			continue
		}
		if b.numeric[name] {
			if f, ok := dataset.ToNumber(v); ok {
				v = f
			}
		}
		fields[name] = v
	}
	return b.prog.Eval(fields, nil)
}

type conditionalRule struct {
	cond      branchProgram
	whenTrue  branchProgram
	whenFalse branchProgram
}

func (c *conditionalRule) eval(run *ruleRun, rec *dataset.Record) (any, error) {
	out, err := c.cond.eval(run, rec)
	if err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	b, ok := out.(bool)
	if !ok {
		return nil, fmt.Errorf("condition produced %T, want a boolean", out)
	}

	branch := c.whenFalse
	if b {
		branch = c.whenTrue
	}
	v, err := branch.eval(run, rec)
	if err != nil {
		return nil, fmt.Errorf("branch: %w", err)
	}
	if f, ok := v.(float64); ok && !finite(f) {
		return nil, fmt.Errorf("branch produced a non-finite number")
	}
	return v, nil
}
