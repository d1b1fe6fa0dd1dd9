package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AttemptMeta identifies an instrumented request attempt for metric attributes.
type AttemptMeta struct {
	Service string
	Method  string
	Host    string
	// ErrorKind is empty for successful attempts.
	ErrorKind string
}

// Metrics records per-attempt metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordAttempt records one finished attempt with its duration and error status.
	RecordAttempt(ctx context.Context, meta AttemptMeta, duration time.Duration, isError bool)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates a Metrics instance backed by the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	totalCount, err := meter.Int64Counter(
		"http.client.attempts",
		metric.WithDescription("Total number of instrumented request attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"http.client.errors",
		metric.WithDescription("Total number of attempts classified as errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"http.client.duration_ms",
		metric.WithDescription("Attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		durationHist: durationHist,
	}, nil
}

// RecordAttempt records metrics for a finished attempt.
func (m *metricsImpl) RecordAttempt(ctx context.Context, meta AttemptMeta, duration time.Duration, isError bool) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", meta.Service),
		attribute.String("http.request.method", meta.Method),
		attribute.String("server.address", meta.Host),
	}
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)

	if isError {
		m.errorCount.Add(ctx, 1, metric.WithAttributes(
			append(attrs, attribute.String("error.type", meta.ErrorKind))...,
		))
	}

	m.durationHist.Record(ctx, float64(duration.Microseconds())/1000, opt)
}

type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordAttempt(ctx context.Context, meta AttemptMeta, duration time.Duration, isError bool) {
}
