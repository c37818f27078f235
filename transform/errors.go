package transform

import (
	"errors"
	"fmt"
)

// ErrNoRecords is returned by Apply when there is nothing to transform.
var ErrNoRecords = errors.New("no records to transform")

// SetupError means a rule could not run at all: its output name collides
// with an existing field or a required parameter is missing. No record is
// touched by the rule.
type SetupError struct {
	RuleID      string
	OutputField string
	Err         error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("rule %s (%s) skipped: %v", e.RuleID, e.OutputField, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// EvaluationError is a failure evaluating a rule against one record, or a
// rule whose expression does not compile (RecordID is empty then).
type EvaluationError struct {
	RuleID      string
	OutputField string
	RecordID    string
	Err         error
}

func (e *EvaluationError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("rule %s (%s) failed: %v", e.RuleID, e.OutputField, e.Err)
	}
	return fmt.Sprintf("rule %s (%s) failed for record %s: %v", e.RuleID, e.OutputField, e.RecordID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

var (
	errOutputExists      = errors.New("output field already exists")
	errAggregateRequired = errors.New("aggregate functions are only supported in arithmetic rules")
)
