package httpserver

import (
	"context"
	"runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/apmcore/chain"
	"github.com/jonwraymond/apmcore/observe"
	"github.com/jonwraymond/apmcore/patch"
	"github.com/jonwraymond/apmcore/propagate"
)

// Integration names.
const (
	TraceIntegrationName   = "net/http.server.tracing"
	RequestIntegrationName = "net/http.server.request"
)

// TraceIntegration installs TraceMiddleware as the outermost entry of Chain.
// A nil Tracer or Propagator selects the global tracer and the default headers.
type TraceIntegration struct {
	Chain      *chain.Chain
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator
}

var _ patch.Integration = (*TraceIntegration)(nil)

// Descriptor describes the integration.
func (i *TraceIntegration) Descriptor() patch.Descriptor {
	return patch.Descriptor{
		Name:         TraceIntegrationName,
		Version:      runtime.Version(),
		Capabilities: []string{"tracing", "distributed_tracing"},
	}
}

// Patch puts the trace entry in front of every existing entry.
func (i *TraceIntegration) Patch(_ context.Context) error {
	if i.Chain == nil {
		return ErrNilChain
	}
	tracer, propagator := i.Tracer, i.Propagator
	if tracer == nil {
		tracer = otel.Tracer(observe.InstrumentationName)
	}
	if propagator == nil {
		propagator = propagate.New()
	}

	e := TraceMiddleware(tracer, propagator)
	if ids := i.Chain.IDs(); len(ids) > 0 {
		return i.Chain.InsertBefore(ids[0], e)
	}
	return i.Chain.Append(e)
}

// Integration installs RequestMiddleware into Chain, directly after the trace entry
// when one is present, otherwise at the end.
type Integration struct {
	Chain *chain.Chain
}

var _ patch.Integration = (*Integration)(nil)

// Descriptor describes the integration.
func (i *Integration) Descriptor() patch.Descriptor {
	return patch.Descriptor{
		Name:         RequestIntegrationName,
		Version:      runtime.Version(),
		Capabilities: []string{"request_tagging"},
	}
}

// Patch inserts the request entry. Patching an already patched chain changes nothing.
func (i *Integration) Patch(_ context.Context) error {
	if i.Chain == nil {
		return ErrNilChain
	}
	return i.Chain.InsertAfter(TraceMiddlewareID, RequestMiddleware())
}
