package aggregate

import (
	"github.com/liamcoop/derive/dataset"
	"github.com/liamcoop/derive/formula"
)

// Result holds precomputed aggregates.
type Result struct {
	Global map[string]*Stats
	// Grouped is keyed by group field, then aggregated field, then group key.
	Grouped map[string]map[string]map[string]*Stats
}

// Compute runs both calculators over the same snapshot.
func Compute(records []dataset.Record, req *Requests) *Result {
	return &Result{
		Global:  ComputeGlobal(records, req.Global),
		Grouped: ComputeGrouped(records, req.Grouped),
	}
}

// numericValue returns the value of field when it is present, non-blank and numeric.
func numericValue(rec *dataset.Record, field string) (float64, bool) {
	v, ok := rec.Value(field)
	if !ok || dataset.IsBlank(v) {
		return 0, false
	}
	return dataset.ToNumber(v)
}

// ComputeGlobal computes the requested statistics per field, one pass per field.
func ComputeGlobal(records []dataset.Record, requests map[string]Set) map[string]*Stats {
	out := make(map[string]*Stats, len(requests))
	for field, want := range requests {
		acc := newAccumulator(want.collect())
		for i := range records {
			if v, ok := numericValue(&records[i], field); ok {
				acc.add(v)
			}
		}
		out[field] = acc.finalize(want)
	}
	return out
}

// ComputeGrouped buckets running statistics by group key in a first pass and
// finalizes every bucket in a second.
func ComputeGrouped(records []dataset.Record, requests map[string]map[string]Set) map[string]map[string]map[string]*Stats {
	buckets := make(map[string]map[string]map[string]*accumulator, len(requests))
	for group, fields := range requests {
		byField := make(map[string]map[string]*accumulator, len(fields))
		for field := range fields {
			byField[field] = make(map[string]*accumulator)
		}
		buckets[group] = byField
	}

	for i := range records {
		rec := &records[i]
		for group, fields := range requests {
			key := dataset.GroupKey(rec.Value(group))
			for field, want := range fields {
				acc, ok := buckets[group][field][key]
				if !ok {
					acc = newAccumulator(want.collect())
					buckets[group][field][key] = acc
				}
				if v, ok := numericValue(rec, field); ok {
					acc.add(v)
				}
			}
		}
	}

	out := make(map[string]map[string]map[string]*Stats, len(buckets))
	for group, byField := range buckets {
		out[group] = make(map[string]map[string]*Stats, len(byField))
		for field, byKey := range byField {
			want := requests[group][field]
			finalized := make(map[string]*Stats, len(byKey))
			for key, acc := range byKey {
				finalized[key] = acc.finalize(want)
			}
			out[group][field] = finalized
		}
	}
	return out
}

// Stats returns the statistics backing an aggregate call. groupKey is ignored
// for ungrouped calls.
func (r *Result) Stats(a *formula.Aggregate, groupKey string) (*Stats, bool) {
	if r == nil {
		return nil, false
	}
	if !a.Grouped() {
		s, ok := r.Global[a.Field]
		return s, ok
	}
	s, ok := r.Grouped[a.GroupBy][a.Field][groupKey]
	return s, ok
}

// Resolve evaluates an aggregate call. It reports false when the statistic is
// unavailable, e.g. no numeric data or an invalid trim parameter.
func (r *Result) Resolve(a *formula.Aggregate, groupKey string) (float64, bool) {
	s, ok := r.Stats(a, groupKey)
	if !ok {
		return 0, false
	}
	return s.resolve(a)
}

func (s *Stats) resolve(a *formula.Aggregate) (float64, bool) {
	deref := func(p *float64) (float64, bool) {
		if p == nil {
			return 0, false
		}
		return *p, true
	}
	switch a.Func {
	case "MIN":
		return deref(s.Min)
	case "MAX":
		return deref(s.Max)
	case "SUM":
		return s.Sum, true
	case "AVG":
		return deref(s.Avg)
	case "MEDIAN":
		return deref(s.Median)
	case "TRIM_AVG":
		return TrimmedMean(s.Values, a.Param)
	case "AVG_AFTER_TRIM_MIN":
		return AvgAfterTrimMin(s.Values, a.Param)
	case "AVG_AFTER_TRIM_MAX":
		return AvgAfterTrimMax(s.Values, a.Param)
	}
	return 0, false
}
