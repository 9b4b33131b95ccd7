// Package otel publishes authcore metrics through an OpenTelemetry Meter.
//
// [New] creates one Int64ObservableCounter per counter and one
// Int64ObservableGauge per cumulative histogram bucket, all fed by a single
// callback that reads Engine.MetricsSnapshot on each collection. The
// MeterProvider belongs to the caller.
package otel
