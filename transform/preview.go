package transform

import "github.com/liamcoop/derive/dataset"

// Preview returns copies of the first n records with every attribute whose
// visibility entry is false removed. Fields absent from visibility are shown.
func Preview(records []dataset.Record, n int, visibility map[string]bool) []dataset.Record {
	if n <= 0 {
		return []dataset.Record{}
	}
	if n > len(records) {
		n = len(records)
	}
	out := make([]dataset.Record, n)
	for i := 0; i < n; i++ {
		rec := records[i].Clone()
		for k := range rec.Attributes {
			if visible, ok := visibility[k]; ok && !visible {
				delete(rec.Attributes, k)
			}
		}
		out[i] = rec
	}
	return out
}
