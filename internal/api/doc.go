// Package api hosts the HTTP control plane for the simulator. Routes:
//   - GET /healthz and /readyz for probes (ready once the worker is running).
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/title for the application title.
//   - GET, POST and DELETE /v1/downloads to list, start and clear downloads. POST is
//     throttled per client host when a limiter is configured.
//   - GET /v1/stats for the worker's delivery counters.
package api
