package rules

import (
	"errors"
	"fmt"
	"time"
)

// RuleType is the fixed enumeration of transformation kinds.
type RuleType string

const (
	TypeArithmetic  RuleType = "arithmetic"
	TypeRatio       RuleType = "ratio"
	TypeWeightedSum RuleType = "weighted_sum"
	TypeText        RuleType = "text"
	TypeConditional RuleType = "conditional"
)

// KnownTypes lists the rule types the engine can execute.
var KnownTypes = []RuleType{TypeArithmetic, TypeRatio, TypeWeightedSum, TypeText, TypeConditional}

// Known reports whether t is one of KnownTypes.
func (t RuleType) Known() bool {
	for _, k := range KnownTypes {
		if t == k {
			return true
		}
	}
	return false
}

var (
	ErrRuleNotFound  = errors.New("rule not found")
	ErrDuplicateRule = errors.New("rule already exists")
)

// Rule is one ordered transformation step producing exactly one new field.
type Rule struct {
	ID          string    `json:"id" yaml:"id"`
	Type        RuleType  `json:"type" yaml:"type"`
	OutputField string    `json:"outputFieldName" yaml:"outputFieldName"`
	Comment     string    `json:"comment,omitempty" yaml:"comment,omitempty"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	Params      Params    `json:"parameters" yaml:"parameters"`
	CreatedAt   time.Time `json:"createdAt,omitempty" yaml:"-"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty" yaml:"-"`
}

// Params holds the type-specific parameters. Members unused by a rule's type are ignored.
type Params struct {
	// arithmetic, text
	Formula string `json:"formula,omitempty" yaml:"formula,omitempty"`
	// ratio
	Numerator   string `json:"numerator,omitempty" yaml:"numerator,omitempty"`
	Denominator string `json:"denominator,omitempty" yaml:"denominator,omitempty"`
	// weighted_sum, e.g. "ROE:0.5, {Net Margin}:0.5"
	Weights string `json:"weights,omitempty" yaml:"weights,omitempty"`
	// conditional
	Condition  string `json:"condition,omitempty" yaml:"condition,omitempty"`
	TrueValue  string `json:"trueValue,omitempty" yaml:"trueValue,omitempty"`
	FalseValue string `json:"falseValue,omitempty" yaml:"falseValue,omitempty"`
}

// Clone returns a copy safe to hand out of a store.
func (r *Rule) Clone() *Rule {
	c := *r
	return &c
}

// RequiredParams checks that every parameter the rule's type needs is set.
// A failure is a setup error: the rule cannot run at all.
func (r *Rule) RequiredParams() error {
	missing := func(name string) error {
		return fmt.Errorf("%s rule %q is missing required parameter %q", r.Type, r.OutputField, name)
	}
	switch r.Type {
	case TypeArithmetic, TypeText:
		if isBlank(r.Params.Formula) {
			return missing("formula")
		}
	case TypeRatio:
		if isBlank(r.Params.Numerator) {
			return missing("numerator")
		}
		if isBlank(r.Params.Denominator) {
			return missing("denominator")
		}
	case TypeWeightedSum:
		if isBlank(r.Params.Weights) {
			return missing("weights")
		}
	case TypeConditional:
		if isBlank(r.Params.Condition) {
			return missing("condition")
		}
		if isBlank(r.Params.TrueValue) {
			return missing("trueValue")
		}
		if isBlank(r.Params.FalseValue) {
			return missing("falseValue")
		}
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	return nil
}
