package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestCounterDefsUniqueAndPrefixed(t *testing.T) {
	names := map[string]bool{}
	ids := map[int]bool{}
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "authcore_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if names[def.Name] || ids[int(def.ID)] {
			t.Fatalf("duplicate definition %q", def.Name)
		}
		names[def.Name] = true
		ids[int(def.ID)] = true
	}
	if len(HistogramUpperBounds)+1 != len(HistogramBoundSuffix) {
		t.Fatalf("bounds %d vs suffixes %d", len(HistogramUpperBounds), len(HistogramBoundSuffix))
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2}))
	want := [authcore.LatencyBucketCount]uint64{1, 1, 3, 3, 3, 3, 3, 3}
	if got != want {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestNamesFollowMetricIDs(t *testing.T) {
	covered := map[authcore.MetricID]bool{}
	for _, def := range CounterDefs {
		if want := "authcore_" + def.ID.String() + "_total"; def.Name != want {
			t.Fatalf("counter %d named %q, want %q", def.ID, def.Name, want)
		}
		covered[def.ID] = true
	}
	for id := authcore.MetricLoginSuccess; id < authcore.MetricValidateLatency; id++ {
		if !covered[id] {
			t.Fatalf("counter %s has no exporter definition", id)
		}
	}
	for _, def := range HistogramDefs {
		if want := "authcore_" + def.ID.String() + "_seconds"; def.Name != want {
			t.Fatalf("histogram named %q, want %q", def.Name, want)
		}
	}
}

func TestBoundSuffixesTrackEngineBounds(t *testing.T) {
	want := []string{"0_005", "0_01", "0_025", "0_05", "0_1", "0_25", "0_5", "inf"}
	if len(HistogramBoundSuffix) != len(want) {
		t.Fatalf("suffixes %v", HistogramBoundSuffix)
	}
	for i := range want {
		if HistogramBoundSuffix[i] != want[i] {
			t.Fatalf("suffix %d = %q want %q", i, HistogramBoundSuffix[i], want[i])
		}
	}
	if HistogramUpperBounds[0] != 0.005 || HistogramUpperBounds[len(HistogramUpperBounds)-1] != 0.5 {
		t.Fatalf("bounds %v", HistogramUpperBounds)
	}
}
