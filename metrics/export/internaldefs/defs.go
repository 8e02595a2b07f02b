package internaldefs

import (
	"github.com/MrEthical07/stagepass"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   stagepass.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   stagepass.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "stagepass_audit_dropped_total"

// CounterDefs lists every counter in MetricID order.
var CounterDefs = []CounterDef{
	{ID: stagepass.MetricLoginSuccess, Name: "stagepass_login_success_total", Help: "Successful logins."},
	{ID: stagepass.MetricLoginFailure, Name: "stagepass_login_failure_total", Help: "Logins rejected for bad credentials."},
	{ID: stagepass.MetricLoginLocked, Name: "stagepass_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: stagepass.MetricLoginUnverified, Name: "stagepass_login_unverified_total", Help: "Logins rejected because the email was not verified."},
	{ID: stagepass.MetricLoginRateLimited, Name: "stagepass_login_rate_limited_total", Help: "Logins rejected by the rate limiter."},
	{ID: stagepass.MetricAccountLocked, Name: "stagepass_account_locked_total", Help: "Accounts that crossed the failure threshold."},
	{ID: stagepass.MetricPasswordRehashed, Name: "stagepass_password_rehashed_total", Help: "Password hashes upgraded on login."},
	{ID: stagepass.MetricRegisterSuccess, Name: "stagepass_register_success_total", Help: "Accounts created."},
	{ID: stagepass.MetricRegisterDuplicate, Name: "stagepass_register_duplicate_total", Help: "Registrations rejected as duplicate email."},
	{ID: stagepass.MetricRefreshSuccess, Name: "stagepass_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: stagepass.MetricRefreshFailure, Name: "stagepass_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: stagepass.MetricRefreshReuseDetected, Name: "stagepass_refresh_reuse_detected_total", Help: "Rotated refresh tokens presented again."},
	{ID: stagepass.MetricSessionCreated, Name: "stagepass_session_created_total", Help: "Refresh records created by login or rotation."},
	{ID: stagepass.MetricLogout, Name: "stagepass_logout_total", Help: "Single-session logouts."},
	{ID: stagepass.MetricLogoutAll, Name: "stagepass_logout_all_total", Help: "Logout-everywhere operations."},
	{ID: stagepass.MetricEmailVerificationRequest, Name: "stagepass_email_verification_request_total", Help: "Email verification requests."},
	{ID: stagepass.MetricEmailVerificationSuccess, Name: "stagepass_email_verification_success_total", Help: "Successful email verifications."},
	{ID: stagepass.MetricEmailVerificationFailure, Name: "stagepass_email_verification_failure_total", Help: "Failed email verifications."},
	{ID: stagepass.MetricPasswordResetRequest, Name: "stagepass_password_reset_request_total", Help: "Password reset requests."},
	{ID: stagepass.MetricPasswordResetSuccess, Name: "stagepass_password_reset_success_total", Help: "Successful password resets."},
	{ID: stagepass.MetricPasswordResetFailure, Name: "stagepass_password_reset_failure_total", Help: "Failed password resets."},
	{ID: stagepass.MetricRateLimitHit, Name: "stagepass_rate_limit_hit_total", Help: "Rate-limit checks that denied a request."},
	{ID: stagepass.MetricMailerFailure, Name: "stagepass_mailer_failure_total", Help: "Mails the Mailer failed to send."},
}

// HistogramDefs lists the latency histograms.
var HistogramDefs = []HistogramDef{
	{ID: stagepass.MetricValidateLatency, Name: "stagepass_validate_latency_seconds", Help: "Access token validation latency."},
	{ID: stagepass.MetricLoginLatency, Name: "stagepass_login_latency_seconds", Help: "Login latency including password verification."},
}

// UpperBoundsSeconds returns the finite bucket bounds in seconds.
func UpperBoundsSeconds() []float64 {
	out := make([]float64, len(stagepass.HistogramUpperBounds))
	for i, d := range stagepass.HistogramUpperBounds {
		out[i] = d.Seconds()
	}
	return out
}

// Normalize pads or truncates raw to the engine bucket count.
func Normalize(raw []uint64) [stagepass.HistogramBucketCount]uint64 {
	var out [stagepass.HistogramBucketCount]uint64
	copy(out[:], raw)
	return out
}

// Cumulative turns per-bucket counts into running totals. The last entry is
// the sample count.
func Cumulative(raw [stagepass.HistogramBucketCount]uint64) [stagepass.HistogramBucketCount]uint64 {
	var out [stagepass.HistogramBucketCount]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
