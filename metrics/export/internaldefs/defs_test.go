package internaldefs

import (
	"strings"
	"testing"
)

func TestDefinitionsAreUniqueAndPrefixed(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range CounterDefs {
		if !strings.HasPrefix(d.Name, "lockr_") || !strings.HasSuffix(d.Name, "_total") {
			t.Fatalf("bad counter name %q", d.Name)
		}
		if seen[d.Name] {
			t.Fatalf("duplicate name %q", d.Name)
		}
		seen[d.Name] = true
	}
	if len(HistogramBounds) != 8 || len(HistogramBoundSuffix) != 8 || len(HistogramBoundSeconds) != 7 {
		t.Fatal("bucket tables out of step")
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2, 0, 0, 0, 0, 3, 9}))
	want := [8]uint64{1, 1, 3, 3, 3, 3, 3, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
