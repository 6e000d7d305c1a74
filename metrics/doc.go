// Package metrics provides Prometheus instrumentation for the runner.
//
// The metrics package exposes execution and batch counters recorded by the
// sandbox package, a system resource collector backed by gopsutil, and an
// HTTP endpoint serving the Prometheus registry.
//
// Usage:
//
//	metrics.NewSystemMetrics().Collect(ctx)
//	go metrics.Serve(logger, 9090)
package metrics
