// Package otel binds goRecovery counters and latency histograms to
// OpenTelemetry observable instruments.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative histogram bucket. A single callback
// reads the engine snapshot on each collection cycle. Callers own the
// MeterProvider.
package otel
