// Package otel publishes session store counters through OpenTelemetry.
//
// [NewOTelExporter] registers one Int64ObservableCounter per store counter and
// one Int64ObservableGauge per latency bucket. A single callback reads
// [authstate.Store.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate store state.
package otel
