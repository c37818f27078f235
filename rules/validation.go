package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MaxRules bounds the size of one rule set.
	MaxRules = 500
	// MaxFieldNameLength bounds output field names.
	MaxFieldNameLength = 100
)

// Validate checks the shape of a single rule: a stable id, a known type and a
// usable output field name. Parameters are checked at run time by RequiredParams.
func Validate(r *Rule) error {
	if r == nil {
		return fmt.Errorf("rule cannot be nil")
	}
	if isBlank(r.ID) {
		return fmt.Errorf("rule id cannot be empty")
	}
	if !r.Type.Known() {
		return fmt.Errorf("rule %s has unknown type %q", r.ID, r.Type)
	}
	if err := ValidateFieldName(r.OutputField); err != nil {
		return fmt.Errorf("rule %s has invalid output field: %w", r.ID, err)
	}
	return nil
}

// ValidateFieldName checks a field name that formulas will reference as {name}.
func ValidateFieldName(name string) error {
	if isBlank(name) {
		return fmt.Errorf("field name cannot be empty")
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("field name %q has leading or trailing whitespace", name)
	}
	if n := utf8.RuneCountInString(name); n > MaxFieldNameLength {
		return fmt.Errorf("field name length %d exceeds maximum of %d characters", n, MaxFieldNameLength)
	}
	if strings.ContainsAny(name, "{}") {
		return fmt.Errorf("field name %q cannot contain braces", name)
	}
	return nil
}

// ValidateDefinitions checks a persisted rule array: every rule is well formed,
// ids are unique and the set is within MaxRules. Nothing beyond shape is checked.
func ValidateDefinitions(rs []*Rule) error {
	if len(rs) > MaxRules {
		return fmt.Errorf("rule set contains %d rules, maximum allowed is %d", len(rs), MaxRules)
	}
	seen := make(map[string]bool, len(rs))
	for i, r := range rs {
		if err := Validate(r); err != nil {
			return fmt.Errorf("rule at position %d: %w", i, err)
		}
		if seen[r.ID] {
			return fmt.Errorf("rule at position %d: %w: %s", i, ErrDuplicateRule, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}

// DecodeDefinitions parses and validates a persisted JSON rule array.
func DecodeDefinitions(data []byte) ([]*Rule, error) {
	var rs []*Rule
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("rule definitions must be a JSON array of rule objects: %w", err)
	}
	if err := ValidateDefinitions(rs); err != nil {
		return nil, err
	}
	return rs, nil
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
