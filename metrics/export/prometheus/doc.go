// Package prometheus renders session store metrics in the Prometheus text
// exposition format.
//
// Counter names are authstate_*_total; the single histogram is
// authstate_profile_fetch_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in a global registry; callers mount [PrometheusExporter.Handler].
//   - Mutate store state.
package prometheus
