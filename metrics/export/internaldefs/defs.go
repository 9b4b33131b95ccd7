package internaldefs

import (
	"github.com/MrEthical07/authcore"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef names one exported latency histogram.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: authcore.MetricRegisterSuccess, Name: "authcore_register_success_total", Help: "Records created by Register."},
	{ID: authcore.MetricRegisterDuplicate, Name: "authcore_register_duplicate_total", Help: "Register calls rejected for a taken email or username."},
	{ID: authcore.MetricLoginSuccess, Name: "authcore_login_success_total", Help: "Completed logins."},
	{ID: authcore.MetricLoginFailure, Name: "authcore_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: authcore.MetricLoginLocked, Name: "authcore_login_locked_total", Help: "Logins rejected while the account was locked."},
	{ID: authcore.MetricLockoutTriggered, Name: "authcore_lockout_triggered_total", Help: "Failed logins that started a lockout."},
	{ID: authcore.MetricTwoFactorRequired, Name: "authcore_two_factor_required_total", Help: "Logins answered with a second-factor challenge."},
	{ID: authcore.MetricTwoFactorSuccess, Name: "authcore_two_factor_success_total", Help: "Accepted two-factor codes."},
	{ID: authcore.MetricTwoFactorFailure, Name: "authcore_two_factor_failure_total", Help: "Rejected two-factor codes."},
	{ID: authcore.MetricTwoFactorRateLimited, Name: "authcore_two_factor_rate_limited_total", Help: "Two-factor checks refused by the attempt limiter."},
	{ID: authcore.MetricTwoFactorEnabled, Name: "authcore_two_factor_enabled_total", Help: "Two-factor enrollments confirmed."},
	{ID: authcore.MetricTwoFactorDisabled, Name: "authcore_two_factor_disabled_total", Help: "Two-factor disable operations."},
	{ID: authcore.MetricPasswordUpgraded, Name: "authcore_password_upgraded_total", Help: "Password hashes rehashed after login."},
	{ID: authcore.MetricLogout, Name: "authcore_logout_total", Help: "Logout operations."},
	{ID: authcore.MetricSessionRevoked, Name: "authcore_session_revoked_total", Help: "Sessions revoked by id."},
	{ID: authcore.MetricVerificationIssued, Name: "authcore_verification_issued_total", Help: "Email verification tokens issued."},
	{ID: authcore.MetricVerificationConsumed, Name: "authcore_verification_consumed_total", Help: "Email verification tokens consumed."},
	{ID: authcore.MetricVerificationFailure, Name: "authcore_verification_failure_total", Help: "Rejected email verification tokens."},
	{ID: authcore.MetricResetIssued, Name: "authcore_reset_issued_total", Help: "Password reset tokens issued."},
	{ID: authcore.MetricResetConsumed, Name: "authcore_reset_consumed_total", Help: "Password reset tokens consumed."},
	{ID: authcore.MetricResetFailure, Name: "authcore_reset_failure_total", Help: "Rejected password reset tokens."},
	{ID: authcore.MetricExternalResolved, Name: "authcore_external_resolved_total", Help: "External identities matched to an existing link."},
	{ID: authcore.MetricExternalLinked, Name: "authcore_external_linked_total", Help: "External identities linked to a record by email."},
	{ID: authcore.MetricExternalCreated, Name: "authcore_external_created_total", Help: "Records created for new external identities."},
	{ID: authcore.MetricRoleChanged, Name: "authcore_role_changed_total", Help: "Role assignments."},
	{ID: authcore.MetricPermissionsChanged, Name: "authcore_permissions_changed_total", Help: "Permission set replacements."},
}

var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthenticateLatency, Name: "authcore_authenticate_latency_seconds", Help: "Authenticate latency."},
}

// ActivityDroppedName is the counter for events lost to dispatcher
// backpressure.
const ActivityDroppedName = "authcore_activity_dropped_total"

// HistogramBounds mirrors authcore.HistogramBounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form valid inside an
// instrument name.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling missing
// buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
