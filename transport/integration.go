package transport

import (
	"context"
	"net/http"
	"runtime"

	"github.com/jonwraymond/apmcore/patch"
	"github.com/jonwraymond/apmcore/span"
)

// IntegrationName is the registry name of the outbound client integration.
const IntegrationName = "net/http.client"

// Integration installs a Transport into Client.
type Integration struct {
	// Name overrides IntegrationName, for patching several clients.
	Name    string
	Client  *http.Client
	Manager *span.Manager
	Options []Option
}

var _ patch.Integration = (*Integration)(nil)

// Descriptor describes the integration.
func (i *Integration) Descriptor() patch.Descriptor {
	name := i.Name
	if name == "" {
		name = IntegrationName
	}
	return patch.Descriptor{
		Name:         name,
		Version:      runtime.Version(),
		Capabilities: []string{"tracing", "distributed_tracing", "retries"},
	}
}

// Patch wraps the client's transport. A client already wrapped is left alone.
func (i *Integration) Patch(_ context.Context) error {
	if i.Client == nil {
		return ErrNilClient
	}
	if i.Manager == nil {
		return ErrNilManager
	}
	if _, ok := i.Client.Transport.(*Transport); ok {
		return nil
	}

	base := i.Client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	opts := append([]Option{WithBase(base)}, i.Options...)
	i.Client.Transport = New(i.Manager, opts...)
	return nil
}
