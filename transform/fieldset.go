package transform

import (
	"sort"

	"github.com/liamcoop/derive/dataset"
)

// FieldSet tracks which field names exist at the current point of a run.
// It only grows: a rule's output is added once the rule has executed,
// regardless of how many records received null.
type FieldSet struct {
	names map[string]struct{}
}

// NewFieldSet seeds the set with the identifier and every attribute key that
// appears on at least one record.
func NewFieldSet(records []dataset.Record) *FieldSet {
	s := &FieldSet{names: map[string]struct{}{dataset.IDField: {}}}
	for i := range records {
		for k := range records[i].Attributes {
			s.names[k] = struct{}{}
		}
	}
	return s
}

// Add marks name as available.
func (s *FieldSet) Add(name string) {
	s.names[name] = struct{}{}
}

// Has reports whether name is available.
func (s *FieldSet) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of available fields.
func (s *FieldSet) Len() int { return len(s.names) }

// Names returns the available fields in sorted order.
func (s *FieldSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for k := range s.names {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
