// Package api hosts the admin HTTP server. Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats for pipeline row counts.
//   - POST /v1/organizations/init, /v1/organizations/{slug}/crawl and /v1/crawl to seed
//     and crawl organizations.
//   - POST /v1/documents/{id}/process and /v1/documents/process-pending to chunk documents.
//   - GET /v1/organizations/{slug}/crawl-logs for recent runs.
package api
