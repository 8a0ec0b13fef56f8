// Package telemetry bundles logging, metrics, and tracing for modeld.
//
// Logging is structured zerolog, metrics are Prometheus with an
// optional scrape server, and tracing is OpenTelemetry with otlp,
// stdout, or no exporter. All three are configured together through
// Config and are safe to leave disabled.
package telemetry
