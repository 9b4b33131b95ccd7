// Package prometheus renders authcore counters and the Authenticate latency
// histogram in the Prometheus text exposition format.
//
// The exporter reads Engine.MetricsSnapshot on every scrape and registers
// nothing globally; callers mount [Exporter.Handler] where they like.
package prometheus
