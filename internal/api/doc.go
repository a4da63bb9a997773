// Package api hosts the HTTP server, middleware, and REST handlers.
// Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/search to run a query through every strategy and return the
//     comparison.
//
// Every strategy reports machine_details entries as {hostname, threads,
// urls_processed}. Distributed batches use "threads" too; there is no
// separate "threads_used" key.
package api
