// Package progress carries archival progress events from the pipeline to
// pluggable sinks. The Hub accepts events without blocking the emitting
// capture goroutines, batches them on a background goroutine and fans each
// batch out to sinks such as structured logs or Prometheus collectors.
package progress
