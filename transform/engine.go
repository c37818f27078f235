package transform

import (
	"errors"
	"fmt"
	"time"

	"github.com/liamcoop/derive/aggregate"
	"github.com/liamcoop/derive/dataset"
	"github.com/liamcoop/derive/formula"
	"github.com/liamcoop/derive/internal/logger"
	"github.com/liamcoop/derive/rules"
)

// Engine applies ordered rule lists to record collections.
// It holds no per-run state and is safe for concurrent use.
type Engine struct {
	env *formula.Env
}

// NewEngine creates an engine with its own formula environment
func NewEngine(opts ...formula.Option) (*Engine, error) {
	env, err := formula.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create formula environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// Result is the output of one run.
type Result struct {
	Records    []dataset.Record
	Fields     []string
	Aggregates *aggregate.Result
	Summary    Summary
}

// Preview returns the first n transformed records filtered by visibility.
func (r *Result) Preview(n int, visibility map[string]bool) []dataset.Record {
	return Preview(r.Records, n, visibility)
}

// Apply runs every enabled rule in order against a copy of records. The input
// is never modified. Aggregates are computed once from the input before any
// rule runs. Failures inside rules are reported in the Summary; the only
// error returned is ErrNoRecords.
func (e *Engine) Apply(records []dataset.Record, list []*rules.Rule) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	start := time.Now()

	work := dataset.CloneAll(records)
	summary := Summary{Records: len(work)}

	runnable := make([]*rules.Rule, 0, len(list))
	for _, rule := range list {
		if rule == nil || !rule.Enabled {
			continue
		}
		if !rule.Type.Known() {
			summary.UnknownRuleTypes++
			summary.Rules = append(summary.Rules, RuleDiagnostic{
				RuleID:      rule.ID,
				OutputField: rule.OutputField,
				Type:        rule.Type,
				Status:      StatusUnknownType,
			})
			logger.Warn("skipping rule with unknown type", "rule_id", rule.ID, "type", string(rule.Type))
			continue
		}
		runnable = append(runnable, rule)
	}

	aggs := aggregate.Compute(work, aggregate.ScanRules(runnable))
	fields := NewFieldSet(work)

	for _, rule := range runnable {
		diag := e.applyRule(rule, work, fields, aggs, &summary)
		summary.Rules = append(summary.Rules, diag)
	}

	summary.Duration = time.Since(start)
	logger.RecordRun(summary.RuleSetupErrors, summary.RowErrors)
	logger.Info("transformation run finished",
		"records", summary.Records,
		"rules_applied", summary.RulesApplied,
		"setup_errors", summary.RuleSetupErrors,
		"row_errors", summary.RowErrors,
		"unknown_rule_types", summary.UnknownRuleTypes,
		"duration", summary.Duration.String())

	return &Result{
		Records:    work,
		Fields:     fields.Names(),
		Aggregates: aggs,
		Summary:    summary,
	}, nil
}

func (e *Engine) applyRule(rule *rules.Rule, work []dataset.Record, fields *FieldSet, aggs *aggregate.Result, summary *Summary) RuleDiagnostic {
	diag := RuleDiagnostic{RuleID: rule.ID, OutputField: rule.OutputField, Type: rule.Type}

	setupErr := rule.RequiredParams()
	if setupErr == nil && fields.Has(rule.OutputField) {
		setupErr = fmt.Errorf("%w: %q", errOutputExists, rule.OutputField)
	}
	if setupErr != nil {
		err := &SetupError{RuleID: rule.ID, OutputField: rule.OutputField, Err: setupErr}
		summary.RuleSetupErrors++
		summary.errs = append(summary.errs, err)
		diag.Status = StatusSkipped
		diag.Error = err.Error()
		logger.Warn("rule skipped", "rule_id", rule.ID, "output_field", rule.OutputField, "error", setupErr)
		return diag
	}

	run := newRuleRun(rule, fields, aggs)
	ev, compileErr := compileRule(e.env, rule)
	if compileErr != nil {
		err := &EvaluationError{RuleID: rule.ID, OutputField: rule.OutputField, Err: compileErr}
		for i := range work {
			work[i].Set(rule.OutputField, nil)
		}
		diag.Status = StatusFailed
		diag.Error = err.Error()
		diag.RowErrors = len(work)
		diag.NullResults = len(work)
		summary.RowErrors += len(work)
		summary.errs = append(summary.errs, err)
		fields.Add(rule.OutputField)
		logger.Error("rule expression is invalid", "rule_id", rule.ID, "output_field", rule.OutputField,
			"records", len(work), "error", compileErr)
		return diag
	}

	var firstErr *EvaluationError
	for i := range work {
		rec := &work[i]
		v, err := ev.eval(run, rec)
		if err != nil {
			diag.RowErrors++
			if firstErr == nil {
				firstErr = &EvaluationError{RuleID: rule.ID, OutputField: rule.OutputField, RecordID: rec.ID, Err: err}
			}
			v = nil
		}
		if v == nil {
			diag.NullResults++
		}
		rec.Set(rule.OutputField, v)
	}
	fields.Add(rule.OutputField)

	diag.Status = StatusApplied
	diag.Warnings = run.warnings
	summary.RulesApplied++
	summary.RowErrors += diag.RowErrors

	if firstErr != nil {
		diag.Error = firstErr.Error()
		summary.errs = append(summary.errs, firstErr)
		logger.Error("rule failed for some records", "rule_id", rule.ID, "output_field", rule.OutputField,
			"failed_records", diag.RowErrors, "first_error", firstErr.Err)
	}
	for _, w := range run.warnings {
		logger.Debug("rule warning", "rule_id", rule.ID, "warning", w)
	}
	return diag
}

// Check compiles every rule without running it. Output name collisions depend
// on the records and are only detected by Apply.
func (e *Engine) Check(list []*rules.Rule) error {
	var errs []error
	for _, rule := range list {
		if err := rules.Validate(rule); err != nil {
			errs = append(errs, err)
			continue
		}
		if err := rule.RequiredParams(); err != nil {
			errs = append(errs, &SetupError{RuleID: rule.ID, OutputField: rule.OutputField, Err: err})
			continue
		}
		if _, err := compileRule(e.env, rule); err != nil {
			errs = append(errs, &EvaluationError{RuleID: rule.ID, OutputField: rule.OutputField, Err: err})
		}
	}
	return errors.Join(errs...)
}
