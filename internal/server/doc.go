// Package server provides the process-level plumbing around the web UI.
//
// ServerContext carries the lifetime of a running server. HealthChecker
// serves the /healthz, /readyz and /healthz/detailed probes; the server is
// only ready once the session manager has finished initializing.
// MetricsServer exposes the Prometheus registry of the instrumentation
// provider on its own listener.
package server
