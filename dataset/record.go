package dataset

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// IDField is the top-level identifier attribute every record exposes to formulas.
const IDField = "id"

// MissingGroupKey is the group key used when a record's group field is missing or blank.
const MissingGroupKey = "__missing__"

// Record is one entity row as delivered by the upstream filtering stage.
type Record struct {
	ID         string         `json:"id"`
	Source     string         `json:"source,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// Value returns the raw value of a field. The identifier is reachable as "id"
// unless an attribute shadows it.
func (r *Record) Value(field string) (any, bool) {
	if v, ok := r.Attributes[field]; ok {
		return v, true
	}
	if field == IDField {
		return r.ID, true
	}
	return nil, false
}

// Set writes a field into the attribute set.
func (r *Record) Set(field string, v any) {
	if r.Attributes == nil {
		r.Attributes = make(map[string]any)
	}
	r.Attributes[field] = v
}

// Clone returns a deep copy with attribute values normalized.
func (r Record) Clone() Record {
	out := Record{
		ID:         r.ID,
		Source:     r.Source,
		Error:      r.Error,
		Attributes: make(map[string]any, len(r.Attributes)),
	}
	for k, v := range r.Attributes {
		out.Attributes[k] = Normalize(v)
	}
	return out
}

// CloneAll deep copies a record collection.
func CloneAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i := range records {
		out[i] = records[i].Clone()
	}
	return out
}

// Normalize maps an attribute value onto float64, string, bool or nil.
func Normalize(v any) any {
	switch n := v.(type) {
	case nil, float64, string, bool:
		return v
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	default:
		return v
	}
}

// IsBlank reports whether a value is absent for aggregation and grouping purposes.
func IsBlank(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(s) == ""
	}
	return false
}

// ToNumber coerces a value to a finite float64. Numeric strings are accepted,
// percent signs and thousands separators are not.
func ToNumber(v any) (float64, bool) {
	switch n := Normalize(v).(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// FormatNumber renders a float without exponent or trailing zeros.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// GroupKey stringifies a group field value.
func GroupKey(v any, present bool) string {
	if !present || IsBlank(v) {
		return MissingGroupKey
	}
	switch n := Normalize(v).(type) {
	case float64:
		return FormatNumber(n)
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	default:
		return MissingGroupKey
	}
}
