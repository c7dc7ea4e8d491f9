// Package otel registers OpenTelemetry observable instruments for engine
// counters and histogram buckets.
//
// [NewExporter] creates one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative histogram bucket. A single callback
// reads one snapshot per collection.
//
// The caller owns the MeterProvider and supplies the Meter.
package otel
