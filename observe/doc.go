// Package observe bootstraps the telemetry primitives used by the instrumentation core.
//
// It owns the OpenTelemetry tracer and meter providers, the structured logger, and the
// per-attempt metrics. It does not create spans itself; package span does that using the
// tracer handed out here.
package observe
