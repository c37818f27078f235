package aggregate

import (
	"math"
	"sort"
)

// Stats is the finalized statistic set for one field, globally or within one group.
// Only the members that were requested are populated.
type Stats struct {
	Min    *float64  `json:"min,omitempty"`
	Max    *float64  `json:"max,omitempty"`
	Sum    float64   `json:"sum"`
	Avg    *float64  `json:"avg,omitempty"`
	Median *float64  `json:"median,omitempty"`
	Count  int       `json:"count"`
	Values []float64 `json:"values,omitempty"` // sorted ascending
}

// accumulator holds running values during a pass.
type accumulator struct {
	min, max, sum float64
	count         int
	values        []float64
	collect       bool
}

func newAccumulator(collect bool) *accumulator {
	return &accumulator{collect: collect}
}

func (a *accumulator) add(v float64) {
	if a.count == 0 || v < a.min {
		a.min = v
	}
	if a.count == 0 || v > a.max {
		a.max = v
	}
	a.sum += v
	a.count++
	if a.collect {
		a.values = append(a.values, v)
	}
}

func (a *accumulator) finalize(want Set) *Stats {
	s := &Stats{Sum: a.sum, Count: a.count}
	if a.count == 0 {
		return s
	}
	if want.Has(Min) {
		s.Min = ptr(a.min)
	}
	if want.Has(Max) {
		s.Max = ptr(a.max)
	}
	if want.Has(Avg) {
		s.Avg = ptr(a.sum / float64(a.count))
	}
	if a.collect {
		sorted := append([]float64(nil), a.values...)
		sort.Float64s(sorted)
		if want.Has(Median) {
			if m, ok := MedianOf(sorted); ok {
				s.Median = ptr(m)
			}
		}
		if want.Has(Values) {
			s.Values = sorted
		}
	}
	return s
}

func ptr(f float64) *float64 { return &f }

// MedianOf returns the median of an ascending slice: the middle element, or
// the mean of the two middle elements for even lengths.
func MedianOf(sorted []float64) (float64, bool) {
	n := len(sorted)
	if n == 0 {
		return 0, false
	}
	if n%2 == 1 {
		return sorted[n/2], true
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2, true
}

// TrimmedMean drops floor(p*n) values from each end of an ascending slice and
// averages the rest. p must satisfy 0 <= p < 0.5.
func TrimmedMean(sorted []float64, p float64) (float64, bool) {
	if math.IsNaN(p) || p < 0 || p >= 0.5 {
		return 0, false
	}
	n := len(sorted)
	drop := int(math.Floor(p * float64(n)))
	if 2*drop >= n {
		return 0, false
	}
	return mean(sorted[drop : n-drop])
}

// AvgAfterTrimMin drops the k lowest values of an ascending slice and averages the rest.
func AvgAfterTrimMin(sorted []float64, k float64) (float64, bool) {
	n, ok := trimCount(k, len(sorted))
	if !ok {
		return 0, false
	}
	return mean(sorted[n:])
}

// AvgAfterTrimMax drops the k highest values of an ascending slice and averages the rest.
func AvgAfterTrimMax(sorted []float64, k float64) (float64, bool) {
	n, ok := trimCount(k, len(sorted))
	if !ok {
		return 0, false
	}
	return mean(sorted[:len(sorted)-n])
}

func trimCount(k float64, n int) (int, bool) {
	if math.IsNaN(k) || k < 0 || k != math.Trunc(k) || k >= float64(n) {
		return 0, false
	}
	return int(k), true
}

func mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}
