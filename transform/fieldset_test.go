package transform

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/derive/dataset"
)

func TestFieldSet(t *testing.T) {
	fs := NewFieldSet([]dataset.Record{
		{ID: "A", Attributes: map[string]any{"Price": 1}},
		{ID: "B", Attributes: map[string]any{"Sector": "Tech"}},
	})

	for _, name := range []string{"id", "Price", "Sector"} {
		if !fs.Has(name) {
			t.Errorf("Has(%q) = false, want true", name)
		}
	}
	if fs.Has("Derived") {
		t.Error("Has(Derived) before Add")
	}

	fs.Add("Derived")
	fs.Add("Derived")
	if diff := cmp.Diff([]string{"Derived", "Price", "Sector", "id"}, fs.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
	if fs.Len() != 4 {
		t.Errorf("Len() = %d, want 4", fs.Len())
	}
}
