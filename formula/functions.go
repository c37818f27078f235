package formula

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"

	"github.com/liamcoop/derive/dataset"
)

// Aggregate functions. The value says whether the call takes a numeric parameter.
var aggregateFuncs = map[string]bool{
	"MIN":                false,
	"MAX":                false,
	"SUM":                false,
	"AVG":                false,
	"MEDIAN":             false,
	"TRIM_AVG":           true,
	"AVG_AFTER_TRIM_MIN": true,
	"AVG_AFTER_TRIM_MAX": true,
}

type funcSpec struct {
	minArgs int
	maxArgs int  // -1 means variadic
	list    bool // arguments are passed to CEL as a single list
}

var scalarFuncs = map[string]funcSpec{
	"ABS":     {1, 1, false},
	"ROUND":   {1, 2, false},
	"FLOOR":   {1, 1, false},
	"CEIL":    {1, 1, false},
	"SQRT":    {1, 1, false},
	"POW":     {2, 2, false},
	"LOG":     {1, 1, false},
	"MOD":     {2, 2, false},
	"MIN":     {2, -1, true},
	"MAX":     {2, -1, true},
	"IF":      {3, 3, false},
	"ISNULL":  {1, 1, false},
	"UPPER":   {1, 1, false},
	"LOWER":   {1, 1, false},
	"TRIM":    {1, 1, false},
	"EXTRACT": {3, 3, false},
	"NUM":     {1, 1, false},
	"LEN":     {1, 1, false},
	"CONCAT":  {1, -1, true},
}

// IsAggregateFunc reports whether name (upper case) is an aggregate function.
func IsAggregateFunc(name string) bool {
	_, ok := aggregateFuncs[name]
	return ok
}

func aggregateTakesParam(name string) bool { return aggregateFuncs[name] }

// IsKnownFunction reports whether name is in the function table, ignoring case.
func IsKnownFunction(name string) bool {
	name = strings.ToUpper(name)
	_, scalar := scalarFuncs[name]
	return scalar || IsAggregateFunc(name)
}

func celFunctions() []cel.EnvOption {
	return []cel.EnvOption{
		numericUnary("ABS", math.Abs),
		numericUnary("FLOOR", math.Floor),
		numericUnary("CEIL", math.Ceil),
		numericUnary("SQRT", math.Sqrt),
		numericUnary("LOG", math.Log),
		cel.Function("ROUND",
			cel.Overload("round_dyn", []*cel.Type{cel.DynType}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val { return round(v, types.Double(0)) })),
			cel.Overload("round_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
				cel.BinaryBinding(round))),
		numericBinary("POW", math.Pow),
		numericBinary("MOD", math.Mod),
		listReduce("MIN", math.Min),
		listReduce("MAX", math.Max),
		cel.Function("ISNULL",
			cel.Overload("isnull_dyn", []*cel.Type{cel.DynType}, cel.BoolType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					return types.Bool(dataset.IsBlank(native(v)))
				}))),
		textUnary("UPPER", strings.ToUpper),
		textUnary("LOWER", strings.ToLower),
		textUnary("TRIM", strings.TrimSpace),
		cel.Function("LEN",
			cel.Overload("len_dyn", []*cel.Type{cel.DynType}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					if isNull(v) {
						return types.NullValue
					}
					return types.Double(utf8.RuneCountInString(stringify(v)))
				}))),
		cel.Function("NUM",
			cel.Overload("num_dyn", []*cel.Type{cel.DynType}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					if f, ok := v.(types.Double); ok {
						return f
					}
					if isNull(v) {
						return types.NullValue
					}
					f, ok := ParseNumeric(stringify(v))
					if !ok {
						return types.NullValue
					}
					return types.Double(f)
				}))),
		cel.Function("EXTRACT",
			cel.Overload("extract_dyn_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType, cel.DynType}, cel.DynType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					if isNull(args[0]) {
						return types.NullValue
					}
					n, ok := toFloat(args[2])
					if !ok || n != math.Trunc(n) {
						return types.NewErr("EXTRACT expects an integer occurrence, got %s", args[2].Type().TypeName())
					}
					out, found := ExtractDelimited(stringify(args[0]), stringify(args[1]), int(n))
					if !found {
						return types.NullValue
					}
					return types.String(out)
				}))),
		cel.Function("CONCAT",
			cel.Overload("concat_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.StringType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					var b strings.Builder
					err := eachElem(v, func(elem ref.Val) ref.Val {
						b.WriteString(stringify(elem))
						return nil
					})
					if err != nil {
						return err
					}
					return types.String(b.String())
				}))),
	}
}

func numericUnary(name string, fn func(float64) float64) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(strings.ToLower(name)+"_dyn", []*cel.Type{cel.DynType}, cel.DynType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				if isNull(v) {
					return types.NullValue
				}
				f, ok := toFloat(v)
				if !ok {
					return types.NewErr("%s expects a number, got %s", name, v.Type().TypeName())
				}
				return types.Double(fn(f))
			})))
}

func numericBinary(name string, fn func(float64, float64) float64) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(strings.ToLower(name)+"_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DynType,
			cel.BinaryBinding(func(a, b ref.Val) ref.Val {
				if isNull(a) || isNull(b) {
					return types.NullValue
				}
				x, okA := toFloat(a)
				y, okB := toFloat(b)
				if !okA || !okB {
					return types.NewErr("%s expects numbers", name)
				}
				return types.Double(fn(x, y))
			})))
}

func listReduce(name string, fn func(float64, float64) float64) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(strings.ToLower(name)+"_list", []*cel.Type{cel.ListType(cel.DynType)}, cel.DynType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				var acc float64
				first, sawNull := true, false
				err := eachElem(v, func(elem ref.Val) ref.Val {
					if isNull(elem) {
						sawNull = true
						return nil
					}
					f, ok := toFloat(elem)
					if !ok {
						return types.NewErr("%s expects numbers", name)
					}
					if first {
						acc, first = f, false
					} else {
						acc = fn(acc, f)
					}
					return nil
				})
				if err != nil {
					return err
				}
				if sawNull || first {
					return types.NullValue
				}
				return types.Double(acc)
			})))
}

func textUnary(name string, fn func(string) string) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(strings.ToLower(name)+"_dyn", []*cel.Type{cel.DynType}, cel.DynType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				if isNull(v) {
					return types.NullValue
				}
				return types.String(fn(stringify(v)))
			})))
}

func round(v, digits ref.Val) ref.Val {
	if isNull(v) {
		return types.NullValue
	}
	f, ok := toFloat(v)
	d, okD := toFloat(digits)
	if !ok || !okD || d != math.Trunc(d) {
		return types.NewErr("ROUND expects a number and an integer digit count")
	}
	scale := math.Pow(10, d)
	return types.Double(math.Round(f*scale) / scale)
}

// eachElem iterates a CEL list. A non-nil return from fn stops iteration and is returned.
func eachElem(v ref.Val, fn func(ref.Val) ref.Val) ref.Val {
	lister, ok := v.(traits.Lister)
	if !ok {
		return types.NewErr("expected a list, got %s", v.Type().TypeName())
	}
	it := lister.Iterator()
	for it.HasNext() == types.True {
		if res := fn(it.Next()); res != nil {
			return res
		}
	}
	return nil
}

func isNull(v ref.Val) bool {
	_, ok := v.(types.Null)
	return ok
}

func toFloat(v ref.Val) (float64, bool) {
	switch x := v.(type) {
	case types.Double:
		return float64(x), true
	case types.Int:
		return float64(x), true
	case types.Uint:
		return float64(x), true
	case types.String:
		return dataset.ToNumber(string(x))
	}
	return 0, false
}

func stringify(v ref.Val) string {
	switch x := v.(type) {
	case types.String:
		return string(x)
	case types.Double:
		return dataset.FormatNumber(float64(x))
	case types.Int:
		return strconv.FormatInt(int64(x), 10)
	case types.Bool:
		return strconv.FormatBool(bool(x))
	case types.Null:
		return ""
	}
	return ""
}

// native converts a CEL value into the record value domain.
func native(v ref.Val) any {
	switch x := v.(type) {
	case types.Double:
		return float64(x)
	case types.Int:
		return float64(x)
	case types.Uint:
		return float64(x)
	case types.String:
		return string(x)
	case types.Bool:
		return bool(x)
	case types.Null:
		return nil
	}
	return v.Value()
}
