// Package prometheus adapts engine metrics to client_golang.
//
// [Collector] implements prometheus.Collector over an [authcore.Engine]
// snapshot. Counters are exported as authcore_*_total and verification
// latency as authcore_verify_latency_seconds. [Handler] serves a private
// registry holding the collector.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
