// Package prometheus exposes engine counters and latency histograms through
// prometheus/client_golang.
//
// [NewCollector] returns a prometheus.Collector that reads
// [stagepass.Engine.MetricsSnapshot] on every scrape. Counter names are
// stagepass_*_total; histograms are stagepass_*_latency_seconds with the
// engine's fixed bucket bounds.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry. Callers choose the registry.
//   - Mutate engine state.
package prometheus
