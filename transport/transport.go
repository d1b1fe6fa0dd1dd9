package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonwraymond/apmcore/resilience"
	"github.com/jonwraymond/apmcore/span"
)

// IdempotencyKeyHeader marks a non-idempotent request as safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// Transport is an instrumented http.RoundTripper.
type Transport struct {
	base    http.RoundTripper
	manager *span.Manager
	service string
	retry   *resilience.Retry
	limit   int
}

var _ http.RoundTripper = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the RoundTripper doing the physical request. Default: http.DefaultTransport.
func WithBase(rt http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = rt
	}
}

// WithServiceName records every attempt under name, ahead of resolved settings.
func WithServiceName(name string) Option {
	return func(t *Transport) {
		t.service = name
	}
}

// WithRetryLimit sets the total number of tries for retryable requests.
func WithRetryLimit(n int) Option {
	return func(t *Transport) {
		t.limit = n
	}
}

// WithRetry sets the backoff policy between tries. WithRetryLimit, when set, takes
// precedence over its MaxAttempts.
func WithRetry(r *resilience.Retry) Option {
	return func(t *Transport) {
		t.retry = r
	}
}

// New creates a Transport recording attempts through m.
func New(m *span.Manager, opts ...Option) *Transport {
	t := &Transport{manager: m}
	for _, opt := range opts {
		opt(t)
	}
	if t.base == nil {
		t.base = http.DefaultTransport
	}
	if t.retry == nil {
		t.retry = resilience.NewRetry(resilience.RetryConfig{
			MaxAttempts: 1,
			Jitter:      true,
		})
	}
	return t
}

// Base returns the wrapped RoundTripper.
func (t *Transport) Base() http.RoundTripper {
	return t.base
}

// RoundTrip sends req, retrying transport failures when the request can be retried.
// Each try is one attempt. The last try's response and error are returned unchanged.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	policy := t.retry
	if t.limit > 0 {
		policy = policy.WithMaxAttempts(t.limit)
	}
	if !retryable(req) {
		policy = policy.WithMaxAttempts(1)
	}

	var resp *http.Response
	var rtErr error
	_ = policy.Execute(req.Context(), func(ctx context.Context, attempt int) error {
		try, err := cloneForAttempt(ctx, req, attempt)
		if err != nil {
			rtErr = err
			return nil
		}
		resp, rtErr = t.manager.DoWithService(try, t.service, t.base.RoundTrip)
		if rtErr != nil && shouldRetry(ctx, rtErr) {
			return rtErr
		}
		return nil
	})

	// A cancellation between tries leaves the previous try's error in place.
	return resp, rtErr
}

func cloneForAttempt(ctx context.Context, req *http.Request, attempt int) (*http.Request, error) {
	try := req.Clone(ctx)
	if attempt > 1 && req.Body != nil && req.Body != http.NoBody {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		try.Body = body
	}
	return try, nil
}

func shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// retryable reports whether req may be sent more than once.
func retryable(req *http.Request) bool {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return false
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace, http.MethodPut, http.MethodDelete, "":
		return true
	}
	return req.Header.Get(IdempotencyKeyHeader) != ""
}
