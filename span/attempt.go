package span

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/apmcore/config"
)

// Attempt is one physical try of a request. It is owned by the goroutine that
// started it and must not be reused for a retry.
type Attempt struct {
	ctx  context.Context
	span trace.Span
	eff  config.Effective

	service string
	method  string
	host    string
	port    int
	path    string
	start   time.Time

	parent   trace.SpanID
	attrs    []attribute.KeyValue
	injected bool
	sent     http.Header

	bypass bool
	state  atomic.Int32
	once   sync.Once
}

// Context returns the context carrying the attempt's span. Use it for the
// physical request.
func (a *Attempt) Context() context.Context {
	return a.ctx
}

// State returns the current lifecycle state.
func (a *Attempt) State() State {
	return State(a.state.Load())
}

// Service returns the service name the attempt is recorded under.
func (a *Attempt) Service() string {
	return a.service
}

// Config returns the effective settings resolved for the target host.
func (a *Attempt) Config() config.Effective {
	return a.eff
}

// SpanContext returns the span context of the attempt, invalid for bypassed attempts.
func (a *Attempt) SpanContext() trace.SpanContext {
	if a.span == nil {
		return trace.SpanContext{}
	}
	return a.span.SpanContext()
}

// Headers returns a copy of the propagation headers sent with the request.
func (a *Attempt) Headers() http.Header {
	return a.sent.Clone()
}

// Bypassed reports whether the attempt was started while instrumentation was disabled.
func (a *Attempt) Bypassed() bool {
	return a.bypass
}

func (a *Attempt) setState(s State) {
	a.state.Store(int32(s))
}
