package transform

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/liamcoop/derive/dataset"
)

func TestPreview(t *testing.T) {
	records := []dataset.Record{
		{ID: "A", Attributes: map[string]any{"Price": 1.0, "Secret": "x", "Sector": "Tech"}},
		{ID: "B", Attributes: map[string]any{"Price": 2.0, "Secret": "y"}},
		{ID: "C", Attributes: map[string]any{"Price": 3.0}},
	}
	visibility := map[string]bool{"Secret": false, "Price": true}

	got := Preview(records, 2, visibility)

	want := []dataset.Record{
		{ID: "A", Attributes: map[string]any{"Price": 1.0, "Sector": "Tech"}},
		{ID: "B", Attributes: map[string]any{"Price": 2.0}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Preview() mismatch (-want +got):\n%s", diff)
	}
	if _, ok := records[0].Attributes["Secret"]; !ok {
		t.Error("Preview() must not modify its input")
	}
}

func TestPreviewBounds(t *testing.T) {
	records := []dataset.Record{{ID: "A"}, {ID: "B"}}

	if got := Preview(records, 10, nil); len(got) != 2 {
		t.Errorf("Preview(10) returned %d records, want 2", len(got))
	}
	if got := Preview(records, 0, nil); len(got) != 0 {
		t.Errorf("Preview(0) returned %d records, want 0", len(got))
	}
}
