package formula

import (
	"math"
	"strings"
	"testing"
)

func newTestEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv()
	if err != nil {
		t.Fatalf("NewEnv() failed: %v", err)
	}
	return env
}

func TestEvalExpressions(t *testing.T) {
	env := newTestEnv(t)

	fields := map[string]any{
		"Price":  10.0,
		"Shares": 100.0,
		"Name":   "  Acme Corp (ACME) ",
		"Yield":  "4.5%",
		"Empty":  nil,
	}

	testCases := []struct {
		name    string
		formula string
		want    any
	}{
		{"Arithmetic", "{Price} * {Shares} / 4", 250.0},
		{"Integer literals are doubles", "7 / 2", 3.5},
		{"Modulo", "{Shares} % 7", 2.0},
		{"Unary minus", "-{Price} + 3", -7.0},
		{"Comparison", "{Price} >= 10 && {Shares} < 200", true},
		{"Equals alias", "{Price} = 10", true},
		{"IF picks branch", `IF({Price} > 5, "high", "low")`, "high"},
		{"IF mixed branch types", `IF({Price} > 50, "high", 0)`, 0.0},
		{"Scalar MIN", "MIN({Price}, {Shares}, 3)", 3.0},
		{"ROUND digits", "ROUND(2.346, 2)", 2.35},
		{"ABS", "ABS(-4)", 4.0},
		{"UPPER and TRIM", "UPPER(TRIM({Name}))", "ACME CORP (ACME)"},
		{"LOWER of number", "LOWER({Price})", "10"},
		{"EXTRACT", `EXTRACT({Name}, "()", 1)`, "ACME"},
		{"EXTRACT missing occurrence", `EXTRACT({Name}, "()", 2)`, nil},
		{"NUM percent", "NUM({Yield})", 0.045},
		{"NUM unparseable", `NUM("n/a")`, nil},
		{"CONCAT", `CONCAT({Price}, "-", {Empty}, "x")`, "10-x"},
		{"LEN", `LEN("abc")`, 3.0},
		{"ISNULL", "ISNULL({Empty})", true},
		{"Null propagates through ABS", "ABS({Empty})", nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := env.CompileString(tc.formula)
			if err != nil {
				t.Fatalf("CompileString(%q) failed: %v", tc.formula, err)
			}
			got, err := prog.Eval(fields, nil)
			if err != nil {
				t.Fatalf("Eval(%q) failed: %v", tc.formula, err)
			}
			if f, ok := got.(float64); ok {
				want, _ := tc.want.(float64)
				if math.Abs(f-want) > 1e-9 {
					t.Errorf("Eval(%q) = %v, want %v", tc.formula, got, tc.want)
				}
				return
			}
			if got != tc.want {
				t.Errorf("Eval(%q) = %#v, want %#v", tc.formula, got, tc.want)
			}
		})
	}
}

func TestEvalAggregateBinding(t *testing.T) {
	env := newTestEnv(t)

	prog, err := env.CompileString("{Price} / AVG({Price} in {Sector})")
	if err != nil {
		t.Fatalf("CompileString() failed: %v", err)
	}
	if len(prog.Aggregates) != 1 {
		t.Fatalf("expected 1 aggregate, got %d", len(prog.Aggregates))
	}

	got, err := prog.Eval(
		map[string]any{"Price": 30.0},
		map[string]any{prog.Aggregates[0].Key(): 15.0},
	)
	if err != nil {
		t.Fatalf("Eval() failed: %v", err)
	}
	if got != 2.0 {
		t.Errorf("Eval() = %v, want 2", got)
	}
}

func TestEvalRuntimeErrors(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		name    string
		formula string
		fields  map[string]any
	}{
		{"String plus number", "{Name} + 1", map[string]any{"Name": "abc"}},
		{"Null arithmetic", "{Price} * 2", map[string]any{"Price": nil}},
		{"Non-bool negation", "!{Price}", map[string]any{"Price": 1.0}},
		{"Non-integer occurrence", `EXTRACT("a(b)", "()", 1.5)`, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := env.CompileString(tc.formula)
			if err != nil {
				t.Fatalf("CompileString(%q) failed: %v", tc.formula, err)
			}
			if _, err := prog.Eval(tc.fields, nil); err == nil {
				t.Errorf("Eval(%q) should fail", tc.formula)
			}
		})
	}
}

func TestCompileRejectsUnknownFunctions(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		formula string
		wantMsg string
	}{
		{"EVAL({A})", "unknown function"},
		{"SUM({A}, {B})", "single {field}"},
		{"POW(2)", "arguments"},
		{"IF(true, 1)", "arguments"},
	}

	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			_, err := env.CompileString(tc.formula)
			if err == nil {
				t.Fatalf("CompileString(%q) should fail", tc.formula)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q should mention %q", err.Error(), tc.wantMsg)
			}
		})
	}
}

func TestStringLiteralsCannotEscapeSandbox(t *testing.T) {
	env := newTestEnv(t)

	prog, err := env.CompileString(`CONCAT("\"] + aggs[\"x", {A})`)
	if err != nil {
		t.Fatalf("CompileString() failed: %v", err)
	}
	got, err := prog.Eval(map[string]any{"A": "!"}, nil)
	if err != nil {
		t.Fatalf("Eval() failed: %v", err)
	}
	if got != `"] + aggs["x!` {
		t.Errorf("Eval() = %q", got)
	}
}
