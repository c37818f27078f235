package transform

import (
	"errors"
	"time"

	"github.com/liamcoop/derive/rules"
)

// RuleStatus is the outcome of one rule in a run.
type RuleStatus string

const (
	StatusApplied     RuleStatus = "applied"
	StatusFailed      RuleStatus = "failed" // expression did not compile; every record is null
	StatusSkipped     RuleStatus = "skipped"
	StatusUnknownType RuleStatus = "unknown_type"
)

// RuleDiagnostic reports what one enabled rule did.
type RuleDiagnostic struct {
	RuleID      string         `json:"ruleId"`
	OutputField string         `json:"outputFieldName"`
	Type        rules.RuleType `json:"type"`
	Status      RuleStatus     `json:"status"`
	Error       string         `json:"error,omitempty"`
	RowErrors   int            `json:"rowErrors"`
	NullResults int            `json:"nullResults"`
	Warnings    []string       `json:"warnings,omitempty"`
}

// Summary describes a run.
type Summary struct {
	Records          int              `json:"records"`
	RulesApplied     int              `json:"rulesApplied"`
	RuleSetupErrors  int              `json:"ruleSetupErrors"`
	RowErrors        int              `json:"rowErrors"`
	UnknownRuleTypes int              `json:"unknownRuleTypes"`
	Rules            []RuleDiagnostic `json:"rules"`
	Duration         time.Duration    `json:"duration"`

	errs []error
}

// Success reports whether the run finished without setup or row errors.
func (s *Summary) Success() bool {
	return s.RuleSetupErrors == 0 && s.RowErrors == 0
}

// Err joins the setup errors and the first evaluation error of each failing
// rule. It is nil on success.
func (s *Summary) Err() error {
	return errors.Join(s.errs...)
}

// Warnings flattens the per-rule warnings.
func (s *Summary) Warnings() []string {
	var out []string
	for _, d := range s.Rules {
		out = append(out, d.Warnings...)
	}
	return out
}
