// Package api hosts the HTTP control surface for ingest runs. Notable routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/ingest/runs to start a run, POST /v1/ingest/cancel to stop it.
//   - GET /v1/ingest/status for the live job state and last report.
//   - GET /v1/ingest/runs/{run_id} and /v1/ingest/runs/latest for tracked runs.
package api
