// Package api hosts the status HTTP server that runs alongside an archival
// run. Routes:
//   - GET /healthz for liveness checks.
//   - GET /metrics for Prometheus scraping of the run registry.
//   - GET /v1/run for the live run snapshot.
//   - GET /v1/run/pages/{index} for one page, by 1-based page number.
package api
