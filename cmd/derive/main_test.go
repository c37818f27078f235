package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const rulesYAML = `
- id: inv
  type: ratio
  outputFieldName: Inv
  parameters:
    numerator: Shares
    denominator: Price
- type: arithmetic
  outputFieldName: Rel
  comment: distance from the mean price
  parameters:
    formula: "{Price} - AVG({Price})"
- type: text
  outputFieldName: Ticker
  enabled: false
  parameters:
    formula: LOWER({id})
`

const recordsJSON = `[
  {"id": "AAA", "attributes": {"Price": 10, "Shares": 100}},
  {"id": "BBB", "attributes": {"Price": 0, "Shares": 50}}
]`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	// flags keep their values between executions
	rulesPath, recordsPath, outputPath, limit, verbose = "", "", "", 0, false

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestLoadRuleFile(t *testing.T) {
	list, err := loadRuleFile(writeFile(t, "rules.yaml", rulesYAML))
	if err != nil {
		t.Fatalf("loadRuleFile() failed: %v", err)
	}

	var got []string
	for _, r := range list {
		got = append(got, r.ID)
	}
	if diff := cmp.Diff([]string{"inv", "rule-2", "rule-3"}, got); diff != "" {
		t.Errorf("rule ids mismatch (-want +got):\n%s", diff)
	}
	if !list[0].Enabled || list[2].Enabled {
		t.Error("enabled should default to true and honour an explicit false")
	}
	if list[1].Comment != "distance from the mean price" {
		t.Errorf("comment = %q", list[1].Comment)
	}
}

func TestLoadRuleFileErrors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"Not a list", "id: r1\ntype: ratio\n"},
		{"Unknown type", "- id: r1\n  type: lookup\n  outputFieldName: X\n"},
		{"Duplicate ids", "- {id: a, type: text, outputFieldName: X}\n- {id: a, type: text, outputFieldName: Y}\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadRuleFile(writeFile(t, "rules.yaml", tc.content)); err == nil {
				t.Error("loadRuleFile() should fail")
			}
		})
	}
}

func TestApplyCommand(t *testing.T) {
	rulesFile := writeFile(t, "rules.yaml", rulesYAML)
	recordsFile := writeFile(t, "records.json", recordsJSON)

	stdout, stderr, err := execute(t, "apply", "--rules", rulesFile, "--records", recordsFile)
	if err != nil {
		t.Fatalf("apply failed: %v\n%s", err, stderr)
	}

	var out struct {
		Fields  []string `json:"fields"`
		Records []struct {
			ID         string         `json:"id"`
			Attributes map[string]any `json:"attributes"`
		} `json:"records"`
	}
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}

	if diff := cmp.Diff([]string{"Inv", "Price", "Rel", "Shares", "id"}, out.Fields); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if got := out.Records[0].Attributes["Inv"]; got != 10.0 {
		t.Errorf("AAA Inv = %v, want 10", got)
	}
	if got := out.Records[1].Attributes["Inv"]; got != nil {
		t.Errorf("BBB Inv = %v, want null", got)
	}
	if !strings.Contains(stderr, "2 rules applied") {
		t.Errorf("stderr = %q, want the run summary", stderr)
	}
}

func TestApplyCommandWritesFileAndLimits(t *testing.T) {
	rulesFile := writeFile(t, "rules.yaml", rulesYAML)
	recordsFile := writeFile(t, "records.json", recordsJSON)
	outFile := filepath.Join(t.TempDir(), "out.json")

	if _, stderr, err := execute(t, "apply", "-r", rulesFile, "-i", recordsFile, "-o", outFile, "-n", "1"); err != nil {
		t.Fatalf("apply failed: %v\n%s", err, stderr)
	}

	data, err := os.ReadFile(outFile)
	if err != nil {
		t.Fatalf("output file missing: %v", err)
	}
	var out output
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if len(out.Records) != 1 || out.Summary.Records != 2 {
		t.Errorf("got %d records of %d, want 1 of 2", len(out.Records), out.Summary.Records)
	}
}

func TestApplyCommandReportsRowErrors(t *testing.T) {
	rulesFile := writeFile(t, "rules.yaml", "- {id: w, type: weighted_sum, outputFieldName: Score, parameters: {weights: 'Price:1, Missing:1'}}\n")
	recordsFile := writeFile(t, "records.json", recordsJSON)

	if _, _, err := execute(t, "apply", "-r", rulesFile, "-i", recordsFile); err == nil {
		t.Error("apply should fail when records error")
	}
}

func TestValidateCommand(t *testing.T) {
	stdout, _, err := execute(t, "validate", "--rules", writeFile(t, "rules.yaml", rulesYAML))
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !strings.Contains(stdout, "3 rules OK") {
		t.Errorf("stdout = %q", stdout)
	}

	broken := "- {id: a, type: arithmetic, outputFieldName: X, parameters: {formula: '{Price} *'}}\n"
	if _, _, err := execute(t, "validate", "--rules", writeFile(t, "rules.yaml", broken)); err == nil {
		t.Error("validate should reject a broken formula")
	}
}
