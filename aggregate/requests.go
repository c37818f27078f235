package aggregate

import (
	"sort"

	"github.com/liamcoop/derive/formula"
	"github.com/liamcoop/derive/internal/logger"
	"github.com/liamcoop/derive/rules"
)

// Statistic is one member of a requested statistic set.
type Statistic uint8

const (
	Min Statistic = 1 << iota
	Max
	Sum
	Avg
	Median
	// Values requests the sorted value list used by the trimmed averages.
	Values
)

// Set is a bit set of statistics.
type Set uint8

func (s Set) Has(st Statistic) bool { return s&Set(st) != 0 }

func (s Set) With(st Statistic) Set { return s | Set(st) }

// collect reports whether the raw values must be kept.
func (s Set) collect() bool { return s.Has(Median) || s.Has(Values) }

// StatisticFor maps an aggregate function name to the statistic it reads.
func StatisticFor(fn string) (Statistic, bool) {
	switch fn {
	case "MIN":
		return Min, true
	case "MAX":
		return Max, true
	case "SUM":
		return Sum, true
	case "AVG":
		return Avg, true
	case "MEDIAN":
		return Median, true
	case "TRIM_AVG", "AVG_AFTER_TRIM_MIN", "AVG_AFTER_TRIM_MAX":
		return Values, true
	}
	return 0, false
}

// Requests lists every distinct aggregate a rule set needs.
type Requests struct {
	Global  map[string]Set            // field -> statistics
	Grouped map[string]map[string]Set // group field -> field -> statistics
}

func NewRequests() *Requests {
	return &Requests{
		Global:  make(map[string]Set),
		Grouped: make(map[string]map[string]Set),
	}
}

// Add records one aggregate call. Repeated calls are deduplicated.
func (r *Requests) Add(a *formula.Aggregate) bool {
	st, ok := StatisticFor(a.Func)
	if !ok {
		return false
	}
	if !a.Grouped() {
		r.Global[a.Field] = r.Global[a.Field].With(st)
		return true
	}
	byField, ok := r.Grouped[a.GroupBy]
	if !ok {
		byField = make(map[string]Set)
		r.Grouped[a.GroupBy] = byField
	}
	byField[a.Field] = byField[a.Field].With(st)
	return true
}

// Empty reports whether nothing was requested.
func (r *Requests) Empty() bool {
	return len(r.Global) == 0 && len(r.Grouped) == 0
}

// GroupFields returns the requested group fields in sorted order.
func (r *Requests) GroupFields() []string {
	out := make([]string, 0, len(r.Grouped))
	for g := range r.Grouped {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// Scan adds every aggregate call found in root. Calls to names outside the
// function table are logged and ignored.
func (r *Requests) Scan(root formula.Node) {
	formula.Walk(root, func(n formula.Node) bool {
		switch x := n.(type) {
		case *formula.Aggregate:
			r.Add(x)
		case *formula.Call:
			if !formula.IsKnownFunction(x.Name) {
				logger.Warn("pre-scan ignoring unknown function", "function", x.Name)
			}
		}
		return true
	})
}

// ScanRules collects the aggregates of every enabled arithmetic rule. Other
// rule types do not support aggregates. Formulas that do not parse are logged
// and skipped; the rule fails later at evaluation time.
func ScanRules(rs []*rules.Rule) *Requests {
	req := NewRequests()
	for _, rule := range rs {
		if !rule.Enabled || rule.Type != rules.TypeArithmetic {
			continue
		}
		root, err := formula.Parse(rule.Params.Formula)
		if err != nil {
			logger.Warn("pre-scan skipping unparseable formula",
				"rule_id", rule.ID,
				"output_field", rule.OutputField,
				"error", err)
			continue
		}
		req.Scan(root)
	}
	return req
}
