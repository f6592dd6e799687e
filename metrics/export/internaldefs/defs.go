package internaldefs

import (
	"github.com/MrEthical07/lockr"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   lockr.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   lockr.MetricID
	Name string
	Help string
}

// CounterDefs lists every counter in export order.
var CounterDefs = []CounterDef{
	{ID: lockr.MetricLoginAttempt, Name: "lockr_login_attempt_total", Help: "Credential submissions sent to the service."},
	{ID: lockr.MetricLoginMFARequired, Name: "lockr_login_mfa_required_total", Help: "Logins that moved on to the MFA step."},
	{ID: lockr.MetricRegistration, Name: "lockr_registration_total", Help: "Successful account registrations."},
	{ID: lockr.MetricMFASuccess, Name: "lockr_mfa_success_total", Help: "Accepted TOTP codes."},
	{ID: lockr.MetricMFAFailure, Name: "lockr_mfa_failure_total", Help: "Rejected TOTP codes."},
	{ID: lockr.MetricBackupCodeUsed, Name: "lockr_backup_code_used_total", Help: "Accepted backup codes."},
	{ID: lockr.MetricBackupCodeFailed, Name: "lockr_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: lockr.MetricBackupCodeRotated, Name: "lockr_backup_code_rotated_total", Help: "Backup code rotations."},
	{ID: lockr.MetricSecretSetup, Name: "lockr_secret_setup_total", Help: "Vault unlock secrets stored on this device."},
	{ID: lockr.MetricUnlockBiometric, Name: "lockr_unlock_biometric_total", Help: "Unlocks through the device challenge."},
	{ID: lockr.MetricUnlockManual, Name: "lockr_unlock_manual_total", Help: "Unlocks by typing the vault secret."},
	{ID: lockr.MetricUnlockFailure, Name: "lockr_unlock_failure_total", Help: "Rejected manual unlock attempts."},
	{ID: lockr.MetricRefreshSuccess, Name: "lockr_refresh_success_total", Help: "Successful session refreshes."},
	{ID: lockr.MetricRefreshFailure, Name: "lockr_refresh_failure_total", Help: "Failed session refreshes."},
	{ID: lockr.MetricRefreshCoalesced, Name: "lockr_refresh_coalesced_total", Help: "Requests that joined an in-flight refresh."},
	{ID: lockr.MetricSessionExpired, Name: "lockr_session_expired_total", Help: "Sessions downgraded after a failed refresh."},
	{ID: lockr.MetricProfileLoadFailure, Name: "lockr_profile_load_failure_total", Help: "Profile loads that kept the previous profile."},
	{ID: lockr.MetricLogout, Name: "lockr_logout_total", Help: "Logouts."},
}

// HistogramDefs lists every histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: lockr.MetricRefreshLatency, Name: "lockr_refresh_latency_seconds", Help: "Session refresh round-trip latency."},
}

// HistogramBounds are the bucket upper bounds in seconds, matching
// lockr.Metrics bucket boundaries.
var HistogramBounds = []string{
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"5",
	"+Inf",
}

// HistogramBoundSeconds are HistogramBounds without +Inf.
var HistogramBoundSeconds = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// HistogramBoundSuffix names per-bucket instruments where labels are not
// available.
var HistogramBoundSuffix = []string{
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
