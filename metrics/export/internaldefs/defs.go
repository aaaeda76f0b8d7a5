package internaldefs

import (
	goRecovery "github.com/MrEthical07/goRecovery"
)

// CounterDef defines a public type used by goRecovery APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   goRecovery.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by goRecovery APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   goRecovery.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter name for audit events dropped under backpressure.
const AuditDroppedName = "gorecovery_audit_dropped_total"

// CounterDefs is an exported constant or variable used by the recovery engine.
var CounterDefs = []CounterDef{
	{ID: goRecovery.MetricResolveSuccess, Name: "gorecovery_resolve_success_total", Help: "Recovery requests that issued a code."},
	{ID: goRecovery.MetricResolveFailure, Name: "gorecovery_resolve_failure_total", Help: "Recovery requests that failed."},
	{ID: goRecovery.MetricNoUserFound, Name: "gorecovery_no_user_found_total", Help: "Claim sets that matched no user."},
	{ID: goRecovery.MetricMultipleUsersMatched, Name: "gorecovery_multiple_users_matched_total", Help: "Claim sets that matched more than one user."},
	{ID: goRecovery.MetricAccountDisabled, Name: "gorecovery_account_disabled_total", Help: "Recovery attempts for disabled accounts."},
	{ID: goRecovery.MetricAccountLocked, Name: "gorecovery_account_locked_total", Help: "Recovery attempts for locked accounts."},
	{ID: goRecovery.MetricNoVerifiedChannels, Name: "gorecovery_no_verified_channels_total", Help: "Accounts without a usable notification channel."},
	{ID: goRecovery.MetricCodeIssued, Name: "gorecovery_code_issued_total", Help: "Recovery codes issued."},
	{ID: goRecovery.MetricValidateSuccess, Name: "gorecovery_validate_success_total", Help: "Successful recovery code validations."},
	{ID: goRecovery.MetricValidateFailure, Name: "gorecovery_validate_failure_total", Help: "Failed recovery code validations."},
	{ID: goRecovery.MetricInvalidCode, Name: "gorecovery_invalid_code_total", Help: "Validations with an unknown or mismatched code."},
	{ID: goRecovery.MetricExpiredCode, Name: "gorecovery_expired_code_total", Help: "Validations with an expired code."},
	{ID: goRecovery.MetricRateLimitHit, Name: "gorecovery_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs is an exported constant or variable used by the recovery engine.
var HistogramDefs = []HistogramDef{
	{ID: goRecovery.MetricResolveLatency, Name: "gorecovery_resolve_latency_seconds", Help: "Recovery resolve latency histogram."},
	{ID: goRecovery.MetricValidateLatency, Name: "gorecovery_validate_latency_seconds", Help: "Recovery code validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the recovery engine.
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

// HistogramUpperBounds are the finite bucket bounds in seconds, in the order
// of HistogramBounds.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix is an exported constant or variable used by the recovery engine.
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

// NormalizeBuckets copies raw into a fixed-size bucket array, zero-filling missing buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the running totals exporters publish.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
