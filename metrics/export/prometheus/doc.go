// Package prometheus exposes goRecovery metrics through
// prometheus/client_golang.
//
// [PrometheusExporter] is a prometheus.Collector that reads an engine snapshot
// on every scrape. Counters are named gorecovery_*_total and the two latency
// histograms are gorecovery_resolve_latency_seconds and
// gorecovery_validate_latency_seconds. Nothing is registered on the default
// registry; callers mount [PrometheusExporter.Handler] or register the
// exporter on their own registry.
package prometheus
