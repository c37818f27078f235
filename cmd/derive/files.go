package main

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/derive/dataset"
	"github.com/liamcoop/derive/rules"
)

// loadRuleFile reads a YAML rule list. JSON exports are valid YAML, so the
// server's export format loads as is. Rules without an id get rule-<n>.
func loadRuleFile(path string) ([]*rules.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var entries []ruleEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("rule file %s must contain a list of rules: %w", path, err)
	}

	list := make([]*rules.Rule, len(entries))
	for i, e := range entries {
		enabled := true
		if e.Enabled != nil {
			enabled = *e.Enabled
		}
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("rule-%d", i+1)
		}
		list[i] = &rules.Rule{
			ID:          id,
			Type:        e.Type,
			OutputField: e.OutputField,
			Comment:     e.Comment,
			Enabled:     enabled,
			Params:      e.Params,
		}
	}

	if err := rules.ValidateDefinitions(list); err != nil {
		return nil, fmt.Errorf("rule file %s: %w", path, err)
	}
	return list, nil
}

func loadRecordFile(path string) ([]dataset.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var records []dataset.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("record file %s must contain a JSON array of records: %w", path, err)
	}
	return records, nil
}
