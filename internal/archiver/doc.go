// Package archiver implements the course page-archival pipeline: page
// discovery, the per-page capture state machine, the bounded worker pool that
// fans captures out, and the artifact naming rules. Browser automation and
// storage are consumed through the Browser, Scope and Storage interfaces so
// the pipeline can be exercised without a real Chrome process.
package archiver
