package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func TestCollectorExportsCountersAndHistogram(t *testing.T) {
	c := NewCollector(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:         3,
				authcore.MetricRefreshReuseDetected: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {2, 1, 0, 0, 0, 0, 0, 1},
			},
		},
		dropped: 4,
	})

	want := len(internaldefs.CounterDefs) + len(internaldefs.HistogramDefs) + 1
	if got := testutil.CollectAndCount(c); got != want {
		t.Fatalf("collected %d metrics, want %d", got, want)
	}

	expected := `
# HELP authcore_login_success_total Successful login attempts.
# TYPE authcore_login_success_total counter
authcore_login_success_total 3
# HELP authcore_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE authcore_audit_dropped_total counter
authcore_audit_dropped_total 4
# HELP authcore_verify_latency_seconds Access-token verification latency.
# TYPE authcore_verify_latency_seconds histogram
authcore_verify_latency_seconds_bucket{le="0.005"} 2
authcore_verify_latency_seconds_bucket{le="0.01"} 3
authcore_verify_latency_seconds_bucket{le="0.025"} 3
authcore_verify_latency_seconds_bucket{le="0.05"} 3
authcore_verify_latency_seconds_bucket{le="0.1"} 3
authcore_verify_latency_seconds_bucket{le="0.25"} 3
authcore_verify_latency_seconds_bucket{le="0.5"} 3
authcore_verify_latency_seconds_bucket{le="+Inf"} 4
authcore_verify_latency_seconds_sum 0
authcore_verify_latency_seconds_count 4
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"authcore_login_success_total",
		"authcore_audit_dropped_total",
		"authcore_verify_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected exposition: %v", err)
	}
}

func TestCollectorWithNilSourceIsEmpty(t *testing.T) {
	if got := testutil.CollectAndCount(NewCollector(nil)); got != 0 {
		t.Fatalf("expected no metrics, got %d", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	h := Handler(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{authcore.MetricLogoutAll: 2},
		},
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authcore_logout_all_total 2") {
		t.Fatalf("missing logout-all counter in:\n%s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("missing runtime collector output")
	}
}
