// Package observability provides structured logging, Prometheus metrics,
// health probes, and graceful shutdown for the tadbeer server.
//
// Logging uses stdlib slog with a JSON handler so log lines can be shipped
// directly to an aggregator. Metrics cover the request pipeline: totals and
// latency per route, throttle rejections, access-control denials, policy
// cache refreshes, and session renewals.
package observability
