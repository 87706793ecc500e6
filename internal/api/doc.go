// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - POST /process-amazon-link resolves one product link.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /debug-env reports which credentials are configured, never their values.
package api
