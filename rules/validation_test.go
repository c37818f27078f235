package rules

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		rule    *Rule
		wantErr bool
	}{
		{"Valid", arithmetic("r1", "Out", "1"), false},
		{"Nil", nil, true},
		{"Blank id", arithmetic(" ", "Out", "1"), true},
		{"Unknown type", &Rule{ID: "r1", Type: "lookup", OutputField: "Out"}, true},
		{"Blank output", arithmetic("r1", "", "1"), true},
		{"Output with braces", arithmetic("r1", "{Out}", "1"), true},
		{"Output with padding", arithmetic("r1", " Out", "1"), true},
		{"Output with inner space", arithmetic("r1", "Net Margin", "1"), false},
		{"Output too long", arithmetic("r1", strings.Repeat("x", MaxFieldNameLength+1), "1"), true},
		{"Missing params is not a shape error", &Rule{ID: "r1", Type: TypeRatio, OutputField: "R"}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.rule)
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestValidateDefinitionsDuplicateIDs(t *testing.T) {
	err := ValidateDefinitions([]*Rule{arithmetic("r1", "A", "1"), arithmetic("r1", "B", "2")})
	if !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("ValidateDefinitions() error = %v, want ErrDuplicateRule", err)
	}
}

func TestValidateDefinitionsLimit(t *testing.T) {
	list := make([]*Rule, MaxRules+1)
	for i := range list {
		list[i] = arithmetic(fmt.Sprintf("r%d", i), "Out", "1")
	}
	if err := ValidateDefinitions(list); err == nil {
		t.Errorf("ValidateDefinitions() should reject more than %d rules", MaxRules)
	}
}

func TestDecodeDefinitions(t *testing.T) {
	t.Run("Valid array", func(t *testing.T) {
		data := `[
			{"id": "a", "type": "arithmetic", "outputFieldName": "A", "enabled": true, "parameters": {"formula": "1"}},
			{"id": "b", "type": "text", "outputFieldName": "B", "enabled": false, "parameters": {"formula": "'x'"}}
		]`
		list, err := DecodeDefinitions([]byte(data))
		if err != nil {
			t.Fatalf("DecodeDefinitions() failed: %v", err)
		}
		if got := ids(list); !equalIDs(got, []string{"a", "b"}) {
			t.Errorf("DecodeDefinitions() ids = %v", got)
		}
	})

	t.Run("Not an array", func(t *testing.T) {
		if _, err := DecodeDefinitions([]byte(`{"id": "a"}`)); err == nil {
			t.Error("DecodeDefinitions() should reject a JSON object")
		}
	})

	t.Run("Unknown type", func(t *testing.T) {
		data := `[{"id": "a", "type": "lookup", "outputFieldName": "A"}]`
		if _, err := DecodeDefinitions([]byte(data)); err == nil {
			t.Error("DecodeDefinitions() should reject unknown rule types")
		}
	})
}
