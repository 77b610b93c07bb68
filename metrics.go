package authstate

import (
	internalmetrics "github.com/MrEthical07/authstate/internal/metrics"
)

// MetricID identifies a counter or histogram in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricEventReceived        = MetricID(internalmetrics.MetricEventReceived)
	MetricEventApplied         = MetricID(internalmetrics.MetricEventApplied)
	MetricEventStale           = MetricID(internalmetrics.MetricEventStale)
	MetricEventDiscardedClosed = MetricID(internalmetrics.MetricEventDiscardedClosed)
	MetricSignedInObserved     = MetricID(internalmetrics.MetricSignedInObserved)
	MetricSignedOutObserved    = MetricID(internalmetrics.MetricSignedOutObserved)
	MetricProfileFetchSuccess  = MetricID(internalmetrics.MetricProfileFetchSuccess)
	MetricProfileFetchFailure  = MetricID(internalmetrics.MetricProfileFetchFailure)
	MetricInitialLoadResolved  = MetricID(internalmetrics.MetricInitialLoadResolved)
	MetricSignOutRequested     = MetricID(internalmetrics.MetricSignOutRequested)
	MetricSignOutFailure       = MetricID(internalmetrics.MetricSignOutFailure)
	MetricProfilePatchApplied  = MetricID(internalmetrics.MetricProfilePatchApplied)
	MetricProfilePatchIgnored  = MetricID(internalmetrics.MetricProfilePatchIgnored)
	MetricListenerRegistered   = MetricID(internalmetrics.MetricListenerRegistered)
	MetricListenerReleased     = MetricID(internalmetrics.MetricListenerReleased)
	MetricProfileFetchLatency  = MetricID(internalmetrics.MetricProfileFetchLatency)
)

// Metrics holds atomic counters and the optional fetch-latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When Enabled is false, all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
