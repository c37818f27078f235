package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/derive/dataset"
	"github.com/liamcoop/derive/formula"
	"github.com/liamcoop/derive/internal/logger"
	"github.com/liamcoop/derive/rules"
	"github.com/liamcoop/derive/transform"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a rule file to a record file",
	Example: `  derive apply --rules rules.yaml --records screen.json
  derive apply -r rules.json -i screen.json -o derived.json -n 20`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a rule file without running it",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

// output is what apply writes
type output struct {
	Fields  []string          `json:"fields"`
	Records []dataset.Record  `json:"records"`
	Summary transform.Summary `json:"summary"`
}

func newEngine() (*transform.Engine, error) {
	cfg := loadConfig()
	return transform.NewEngine(formula.WithCostLimit(cfg.EvalCostLimit))
}

func runApply(cmd *cobra.Command, args []string) error {
	list, err := loadRuleFile(rulesPath)
	if err != nil {
		return err
	}
	records, err := loadRecordFile(recordsPath)
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	res, err := engine.Apply(records, list)
	if err != nil {
		return err
	}

	out := output{Fields: res.Fields, Records: res.Records, Summary: res.Summary}
	if limit > 0 {
		out.Records = res.Preview(limit, nil)
	}

	var w io.Writer = cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	s := res.Summary
	fmt.Fprintf(cmd.ErrOrStderr(), "%d records, %d rules applied, %d setup errors, %d row errors\n",
		s.Records, s.RulesApplied, s.RuleSetupErrors, s.RowErrors)
	for _, warning := range s.Warnings() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
	}

	if !s.Success() {
		return fmt.Errorf("run finished with errors: %w", s.Err())
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	list, err := loadRuleFile(rulesPath)
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}

	if err := engine.Check(list); err != nil {
		logger.Debug("rule file failed validation", "path", rulesPath, "error", err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d rules OK\n", len(list))
	return nil
}

// ruleEntry mirrors rules.Rule with enabled defaulting to true
type ruleEntry struct {
	ID          string         `yaml:"id"`
	Type        rules.RuleType `yaml:"type"`
	OutputField string         `yaml:"outputFieldName"`
	Comment     string         `yaml:"comment"`
	Enabled     *bool          `yaml:"enabled"`
	Params      rules.Params   `yaml:"parameters"`
}
