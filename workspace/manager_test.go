package workspace

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/liamcoop/derive/dataset"
	"github.com/liamcoop/derive/rules"
	"github.com/liamcoop/derive/transform"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	engine, err := transform.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return NewManager(nil, engine)
}

func screenerRecords() []dataset.Record {
	return []dataset.Record{
		{ID: "AAA", Attributes: map[string]any{"Price": 10, "Shares": 100}},
		{ID: "BBB", Attributes: map[string]any{"Price": 0, "Shares": 50}},
	}
}

func ratioRule() *rules.Rule {
	return &rules.Rule{
		Type:        rules.TypeRatio,
		OutputField: "Inv",
		Enabled:     true,
		Params:      rules.Params{Numerator: "Shares", Denominator: "Price"},
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := newManager(t)

	if _, err := m.CreateWorkspace("  "); err == nil {
		t.Error("CreateWorkspace() should reject a blank name")
	}

	a, err := m.CreateWorkspace("screener")
	if err != nil {
		t.Fatalf("CreateWorkspace() failed: %v", err)
	}
	b, _ := m.CreateWorkspace("backtest")

	got, err := m.Get(a.ID)
	if err != nil || got != a {
		t.Errorf("Get() = %v, %v; want the created workspace", got, err)
	}
	if list := m.List(); len(list) != 2 {
		t.Errorf("List() returned %d workspaces, want 2", len(list))
	}

	if err := m.Delete(b.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := m.Get(b.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrWorkspaceNotFound", err)
	}
	if err := m.Delete(b.ID); !errors.Is(err, ErrWorkspaceNotFound) {
		t.Errorf("Delete(missing) error = %v, want ErrWorkspaceNotFound", err)
	}
	if err := m.LoadAll(); err != nil {
		t.Errorf("LoadAll() without a database should be a no-op, got %v", err)
	}
}

func TestWorkspaceApply(t *testing.T) {
	ws, _ := newManager(t).CreateWorkspace("screener")

	if _, err := ws.Result(); !errors.Is(err, ErrNoResult) {
		t.Errorf("Result() before Apply() error = %v, want ErrNoResult", err)
	}
	if _, err := ws.Apply(); !errors.Is(err, transform.ErrNoRecords) {
		t.Errorf("Apply() without records error = %v, want ErrNoRecords", err)
	}

	if err := ws.Rules.Add(ratioRule()); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	ws.SetRecords(screenerRecords())

	res, err := ws.Apply()
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if got := res.Records[0].Attributes["Inv"]; got != 10.0 {
		t.Errorf("AAA Inv = %v, want 10", got)
	}
	if got := res.Records[1].Attributes["Inv"]; got != nil {
		t.Errorf("BBB Inv = %v, want null", got)
	}

	published, err := ws.Result()
	if err != nil || published != res {
		t.Errorf("Result() = %v, %v; want the applied result", published, err)
	}
}

func TestWorkspaceKeepsResultWhenNothingToDo(t *testing.T) {
	ws, _ := newManager(t).CreateWorkspace("screener")
	_ = ws.Rules.Add(ratioRule())
	ws.SetRecords(screenerRecords())

	first, err := ws.Apply()
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	ws.SetRecords(nil)
	if _, err := ws.Apply(); !errors.Is(err, transform.ErrNoRecords) {
		t.Fatalf("Apply() error = %v, want ErrNoRecords", err)
	}

	kept, err := ws.Result()
	if err != nil || kept != first {
		t.Error("an empty run must leave the previous result in place")
	}
}

func TestWorkspaceStaleAfterRuleChange(t *testing.T) {
	ws, _ := newManager(t).CreateWorkspace("screener")
	r := ratioRule()
	_ = ws.Rules.Add(r)
	ws.SetRecords(screenerRecords())

	if _, err := ws.Apply(); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if ws.Stale() {
		t.Error("Stale() right after Apply()")
	}

	if err := ws.Rules.SetEnabled(r.ID, false); err != nil {
		t.Fatalf("SetEnabled() failed: %v", err)
	}
	if !ws.Stale() {
		t.Error("Stale() should report the rule change")
	}

	res, _ := ws.Result()
	if _, ok := res.Records[0].Attributes["Inv"]; !ok {
		t.Error("toggling a rule must not recompute the published result")
	}
}

func TestWorkspacePreview(t *testing.T) {
	ws, _ := newManager(t).CreateWorkspace("screener")
	_ = ws.Rules.Add(ratioRule())
	ws.SetRecords(screenerRecords())

	if _, err := ws.Preview(1, nil); !errors.Is(err, ErrNoResult) {
		t.Errorf("Preview() before Apply() error = %v, want ErrNoResult", err)
	}

	_, _ = ws.Apply()
	got, err := ws.Preview(1, map[string]bool{"Shares": false})
	if err != nil {
		t.Fatalf("Preview() failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Preview() returned %d records, want 1", len(got))
	}
	if _, ok := got[0].Attributes["Shares"]; ok {
		t.Error("hidden field Shares should be filtered")
	}
	if _, ok := got[0].Attributes["Inv"]; !ok {
		t.Error("unlisted field Inv should be visible")
	}
}

func TestWorkspaceExportImport(t *testing.T) {
	m := newManager(t)
	src, _ := m.CreateWorkspace("source")
	_ = src.Rules.Add(ratioRule())
	_ = src.Rules.Add(&rules.Rule{Type: rules.TypeArithmetic, OutputField: "Cap", Enabled: true,
		Params: rules.Params{Formula: "{Price} * {Shares}"}})

	data, err := src.ExportRules()
	if err != nil {
		t.Fatalf("ExportRules() failed: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil || len(decoded) != 2 {
		t.Fatalf("export is not a JSON array of two rules: %s", data)
	}

	dst, _ := m.CreateWorkspace("copy")
	n, err := dst.ImportRules(data)
	if err != nil {
		t.Fatalf("ImportRules() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("ImportRules() = %d, want 2", n)
	}

	list, _ := dst.Rules.Rules()
	if list[0].OutputField != "Inv" || list[1].OutputField != "Cap" {
		t.Errorf("imported order = [%s %s], want [Inv Cap]", list[0].OutputField, list[1].OutputField)
	}

	if _, err := dst.ImportRules([]byte(`[{"id": "x", "type": "lookup", "outputFieldName": "X"}]`)); err == nil {
		t.Error("ImportRules() should reject unknown rule types")
	}
	if list, _ := dst.Rules.Rules(); len(list) != 2 {
		t.Error("a rejected import must leave the rule list untouched")
	}
}

func TestWorkspaceConcurrentApply(t *testing.T) {
	ws, _ := newManager(t).CreateWorkspace("screener")
	_ = ws.Rules.Add(ratioRule())
	ws.SetRecords(screenerRecords())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ws.Apply(); err != nil {
				t.Errorf("Apply() failed: %v", err)
			}
			_, _ = ws.Preview(1, nil)
		}()
	}
	wg.Wait()
}
