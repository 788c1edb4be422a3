// Package observability provides an OpenTelemetry metrics extension. The
// MetricsExtension implements lifecycle hooks to record system-wide
// counters for submission, completion, failure, retry, cancellation,
// recovery and cron events, plus a submit-to-finish latency histogram.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
