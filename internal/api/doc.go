// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /crawl/oscar for job submission.
//   - GET /results/{job_id} for job snapshots.
//   - GET /jobs for job listing.
package api
