package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID names an engine counter. MetricValidateLatency is the one
// histogram and never appears in MetricsSnapshot.Counters.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginRateLimited
	MetricPasswordRehashed

	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricRefreshRateLimited

	// MetricThrottleUnavailable counts requests refused because the
	// limiter backend could not be reached.
	MetricThrottleUnavailable

	MetricSessionCreated
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricAccessTokenRejected

	MetricAccountCreationSuccess
	MetricAccountCreationDuplicate
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld

	MetricRoleAssigned
	MetricRoleAssignRejected
	MetricPermissionsAssigned
	MetricPermissionAssignRejected

	MetricValidateLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricLoginSuccess:             "login_success",
	MetricLoginFailure:             "login_failure",
	MetricLoginRateLimited:         "login_rate_limited",
	MetricPasswordRehashed:         "password_rehashed",
	MetricRefreshSuccess:           "refresh_success",
	MetricRefreshFailure:           "refresh_failure",
	MetricRefreshReuseDetected:     "refresh_reuse_detected",
	MetricRefreshRateLimited:       "refresh_rate_limited",
	MetricThrottleUnavailable:      "throttle_unavailable",
	MetricSessionCreated:           "session_created",
	MetricSessionInvalidated:       "session_invalidated",
	MetricLogout:                   "logout",
	MetricLogoutAll:                "logout_all",
	MetricAccessTokenRejected:      "access_token_rejected",
	MetricAccountCreationSuccess:   "account_creation_success",
	MetricAccountCreationDuplicate: "account_creation_duplicate",
	MetricPasswordChangeSuccess:    "password_change_success",
	MetricPasswordChangeInvalidOld: "password_change_invalid_old",
	MetricRoleAssigned:             "role_assigned",
	MetricRoleAssignRejected:       "role_assign_rejected",
	MetricPermissionsAssigned:      "permissions_assigned",
	MetricPermissionAssignRejected: "permission_assign_rejected",
	MetricValidateLatency:          "verify_latency",
}

// String returns the snake_case name exporters build metric names from.
func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

// latencyBounds are the inclusive upper bounds of the verify histogram. One
// overflow bucket follows the last bound.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

// LatencyBucketCount is the number of verify histogram buckets, overflow
// included.
const LatencyBucketCount = len(latencyBounds) + 1

// LatencyBounds returns the finite verify histogram bounds in ascending
// order.
func LatencyBounds() []time.Duration {
	return append([]time.Duration(nil), latencyBounds[:]...)
}

const cacheLineSize = 64

// Counters sit on their own cache line; login and refresh counters are hit
// from every request goroutine.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of lock-free counters plus the verify latency
// histogram. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	latency       [LatencyBucketCount]uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func emptySnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
}

// NewMetrics allocates the counters; cfg decides whether they record.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc bumps a counter. The histogram id and out-of-range ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d into the verify histogram. Any id other than
// MetricValidateLatency is ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.latency[latencyBucket(d)], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricValidateLatency {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters. Disabled metrics return empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return emptySnapshot()
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(MetricValidateLatency)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < MetricValidateLatency; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, LatencyBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.latency[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
