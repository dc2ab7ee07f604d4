// Package sinks implements progress consumers: a zap logging sink for
// interactive runs, a Prometheus sink that keeps archival counters and a
// status sink that holds the live run snapshot served over HTTP.
package sinks
