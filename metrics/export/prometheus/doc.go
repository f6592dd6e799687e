// Package prometheus exposes lockr controller metrics as a
// prometheus.Collector.
//
// Counter names are prefixed lockr_*_total; the single histogram is
// lockr_refresh_latency_seconds. Histogram samples are bucketed only, so its
// _sum is always zero.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. Callers register the
//     Collector or mount [Handler].
//   - Mutate controller state.
package prometheus
