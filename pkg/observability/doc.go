// Package observability provides structured JSON logging, Prometheus metrics
// for the authorization core, and dependency health checks.
package observability
