// Package api hosts the status server that runs alongside a crawl.
// Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/status for the counters of the current crawl run.
//   - GET /v1/registry/{id} for one registry entry.
package api
