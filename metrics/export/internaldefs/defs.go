package internaldefs

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Successful login attempts."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Failed login attempts."},
	{ID: authcore.MetricLoginRateLimited, Name: "authcore_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authcore.MetricRefreshSuccess, Name: "authcore_refresh_success_total", Help: "Successful refresh-token rotations."},
	{ID: authcore.MetricRefreshFailure, Name: "authcore_refresh_failure_total", Help: "Rejected refresh-token rotations."},
	{ID: authcore.MetricRefreshReuseDetected, Name: "authcore_refresh_reuse_detected_total", Help: "Revoked refresh tokens presented again."},
	{ID: authcore.MetricRefreshRateLimited, Name: "authcore_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: authcore.MetricThrottleUnavailable, Name: "authcore_throttle_unavailable_total", Help: "Requests refused because the limiter backend was unreachable."},
	{ID: authcore.MetricSessionCreated, Name: "authcore_session_created_total", Help: "Refresh-token rows created."},
	{ID: authcore.MetricSessionInvalidated, Name: "authcore_session_invalidated_total", Help: "Refresh-token rows revoked."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Single-session logout operations."},
	{ID: authcore.MetricLogoutAll, Name: "authcore_logout_all_total", Help: "Logout-all operations."},
	{ID: authcore.MetricAccessTokenRejected, Name: "authcore_access_token_rejected_total", Help: "Access tokens rejected by verification."},
	{ID: authcore.MetricAccountCreationSuccess, Name: "authcore_account_creation_success_total", Help: "Successful account registrations."},
	{ID: authcore.MetricAccountCreationDuplicate, Name: "authcore_account_creation_duplicate_total", Help: "Registrations rejected because the email is taken."},
	{ID: authcore.MetricPasswordChangeSuccess, Name: "authcore_password_change_success_total", Help: "Successful password changes."},
	{ID: authcore.MetricPasswordChangeInvalidOld, Name: "authcore_password_change_invalid_old_total", Help: "Password changes rejected for a wrong current password."},
	{ID: authcore.MetricPasswordRehashed, Name: "authcore_password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: authcore.MetricRoleAssigned, Name: "authcore_role_assigned_total", Help: "Roles assigned to accounts."},
	{ID: authcore.MetricRoleAssignRejected, Name: "authcore_role_assign_rejected_total", Help: "Rejected role assignments."},
	{ID: authcore.MetricPermissionsAssigned, Name: "authcore_permissions_assigned_total", Help: "Permission sets assigned to roles."},
	{ID: authcore.MetricPermissionAssignRejected, Name: "authcore_permission_assign_rejected_total", Help: "Rejected permission assignments."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricValidateLatency, Name: "authcore_verify_latency_seconds", Help: "Access-token verification latency."},
}

// AuditDropped is exported alongside the engine counters.
var AuditDropped = CounterDef{
	Name: "authcore_audit_dropped_total",
	Help: "Audit events dropped because the dispatcher buffer was full.",
}

// HistogramUpperBounds are the engine's finite latency bounds in seconds.
// The engine keeps one extra +Inf bucket.
var HistogramUpperBounds = upperBounds()

// HistogramBoundSuffix names each bucket for exporters that flatten the
// histogram into gauges.
var HistogramBoundSuffix = boundSuffixes(HistogramUpperBounds)

func upperBounds() []float64 {
	bounds := authcore.LatencyBounds()
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = b.Seconds()
	}
	return out
}

func boundSuffixes(bounds []float64) []string {
	out := make([]string, 0, len(bounds)+1)
	for _, b := range bounds {
		out = append(out, strings.ReplaceAll(strconv.FormatFloat(b, 'f', -1, 64), ".", "_"))
	}
	return append(out, "inf")
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [authcore.LatencyBucketCount]uint64 {
	var out [authcore.LatencyBucketCount]uint64
	copy(out[:], raw)
	return out
}

func CumulativeBuckets(raw [authcore.LatencyBucketCount]uint64) [authcore.LatencyBucketCount]uint64 {
	var out [authcore.LatencyBucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
