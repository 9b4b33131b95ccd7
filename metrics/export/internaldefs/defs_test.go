package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestCounterDefsMatchMetricNames(t *testing.T) {
	seen := make(map[authcore.MetricID]bool)
	for _, def := range CounterDefs {
		if seen[def.ID] {
			t.Fatalf("metric %s defined twice", def.ID)
		}
		seen[def.ID] = true
		want := "authcore_" + def.ID.String() + "_total"
		if def.Name != want {
			t.Fatalf("name %q, want %q", def.Name, want)
		}
		if strings.TrimSpace(def.Help) == "" {
			t.Fatalf("%s has no help text", def.Name)
		}
	}
}

func TestBucketsLineUpWithEngineBounds(t *testing.T) {
	if len(HistogramBounds) != len(authcore.HistogramBounds)+1 || len(HistogramBoundSuffix) != len(HistogramBounds) {
		t.Fatal("bucket definitions out of sync")
	}
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 2, 3}))
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}
