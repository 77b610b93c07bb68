package internaldefs

import (
	"github.com/MrEthical07/authstate"
)

// CounterDef names one store counter for exporters.
type CounterDef struct {
	ID   authstate.MetricID
	Name string
	Help string
}

// HistogramDef names one store histogram for exporters.
type HistogramDef struct {
	ID   authstate.MetricID
	Name string
	Help string
}

const AuditDroppedName = "authstate_audit_dropped_total"

const AuditDroppedHelp = "Session reports dropped by dispatcher backpressure."

var CounterDefs = []CounterDef{
	{ID: authstate.MetricEventReceived, Name: "authstate_event_received_total", Help: "Auth events delivered by the provider."},
	{ID: authstate.MetricEventApplied, Name: "authstate_event_applied_total", Help: "Results written into the session state."},
	{ID: authstate.MetricEventStale, Name: "authstate_event_stale_total", Help: "Results discarded because a newer event or sign-out had been applied."},
	{ID: authstate.MetricEventDiscardedClosed, Name: "authstate_event_discarded_closed_total", Help: "Events or results discarded after the store closed."},
	{ID: authstate.MetricSignedInObserved, Name: "authstate_signed_in_observed_total", Help: "Events carrying an identity."},
	{ID: authstate.MetricSignedOutObserved, Name: "authstate_signed_out_observed_total", Help: "Events without an identity."},
	{ID: authstate.MetricProfileFetchSuccess, Name: "authstate_profile_fetch_success_total", Help: "Successful profile create-or-fetch calls."},
	{ID: authstate.MetricProfileFetchFailure, Name: "authstate_profile_fetch_failure_total", Help: "Failed profile create-or-fetch calls."},
	{ID: authstate.MetricInitialLoadResolved, Name: "authstate_initial_load_resolved_total", Help: "Transitions of the loading flag to resolved."},
	{ID: authstate.MetricSignOutRequested, Name: "authstate_sign_out_requested_total", Help: "Sign-out requests."},
	{ID: authstate.MetricSignOutFailure, Name: "authstate_sign_out_failure_total", Help: "Sign-out requests the provider rejected."},
	{ID: authstate.MetricProfilePatchApplied, Name: "authstate_profile_patch_applied_total", Help: "Local profile patches applied."},
	{ID: authstate.MetricProfilePatchIgnored, Name: "authstate_profile_patch_ignored_total", Help: "Local profile patches ignored for lack of a profile."},
	{ID: authstate.MetricListenerRegistered, Name: "authstate_listener_registered_total", Help: "Change listeners registered."},
	{ID: authstate.MetricListenerReleased, Name: "authstate_listener_released_total", Help: "Change listeners released."},
}

var HistogramDefs = []HistogramDef{
	{ID: authstate.MetricProfileFetchLatency, Name: "authstate_profile_fetch_latency_seconds", Help: "Profile create-or-fetch latency histogram."},
}

// HistogramBounds are the upper bounds of the store's eight latency buckets.
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

// HistogramBoundSuffix are HistogramBounds made safe for instrument names.
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

// NormalizeBuckets pads or truncates raw to the fixed bucket count. A missing
// histogram yields all zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	copy(out[:], raw)
	return out
}

// CumulativeBuckets turns per-bucket counts into le-style running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i, v := range raw {
		running += v
		out[i] = running
	}
	return out
}
