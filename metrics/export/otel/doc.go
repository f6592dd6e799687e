// Package otel publishes lockr controller metrics through an OpenTelemetry
// meter.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter and a
// cumulative gauge per histogram bucket, all observed from a single
// MetricsSnapshot per collection cycle.
package otel
