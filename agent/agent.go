// Package agent assembles the instrumentation core for a host program.
//
// An Agent owns the telemetry providers, the span manager, the settings resolver and
// the patch coordinator. Integrations are registered with it and installed by Start.
// An environment gate lets operators switch instrumentation off without a rebuild;
// when it is closed New builds none of that state and the Agent is inert.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonwraymond/apmcore/chain"
	"github.com/jonwraymond/apmcore/config"
	"github.com/jonwraymond/apmcore/health"
	"github.com/jonwraymond/apmcore/httpserver"
	"github.com/jonwraymond/apmcore/observe"
	"github.com/jonwraymond/apmcore/patch"
	"github.com/jonwraymond/apmcore/propagate"
	"github.com/jonwraymond/apmcore/span"
	"github.com/jonwraymond/apmcore/transport"
)

// DefaultEnabledEnv is the environment variable that gates Start.
const DefaultEnabledEnv = "APMCORE_INSTRUMENTATION_ENABLED"

// ErrNotStarted is returned by Shutdown on an agent whose New failed half way.
var ErrNotStarted = errors.New("agent: not started")

// Config configures an Agent.
type Config struct {
	Observe observe.Config

	// SettingsFile is an optional YAML file of resolver defaults and overrides.
	SettingsFile string

	// EnabledEnv names the gate variable. Empty means DefaultEnabledEnv.
	EnabledEnv string

	// RequireEnv makes the Agent inert unless the gate variable is "1" or "true".
	// When false the gate is ignored.
	RequireEnv bool

	// AsyncBuffer is the queue length of the record sink. Zero disables queuing.
	AsyncBuffer int
}

// Agent is a running instrumentation core.
type Agent struct {
	cfg         Config
	disabled    bool
	observer    observe.Observer
	logger      observe.Logger
	resolver    *config.Resolver
	propagator  *propagate.Propagator
	manager     *span.Manager
	coordinator *patch.Coordinator
	health      *health.Aggregator
	async       *span.AsyncSink
}

// New builds an Agent. sink receives finished records; nil discards them.
//
// When the gate is closed New returns an inert Agent without validating cfg or
// creating providers, resolver, manager or coordinator. Its accessors return nil and
// its other methods do nothing.
func New(ctx context.Context, cfg Config, sink span.Sink) (*Agent, error) {
	if !gateOpen(cfg) {
		return &Agent{cfg: cfg, disabled: true, logger: observe.NopLogger()}, nil
	}

	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("failed to create observer: %w", err)
	}

	resolver := config.NewResolver(config.DefaultSettings())
	if cfg.SettingsFile != "" {
		f, err := config.LoadFile(cfg.SettingsFile)
		if err == nil {
			f.ApplyEnv()
			err = f.Apply(resolver)
		}
		if err != nil {
			_ = obs.Shutdown(ctx)
			return nil, err
		}
	}

	a := &Agent{
		cfg:        cfg,
		observer:   obs,
		logger:     obs.Logger(),
		resolver:   resolver,
		propagator: propagate.New(),
		health:     health.NewAggregator(),
	}
	a.coordinator = patch.NewCoordinator(patch.WithLogger(a.logger))

	if sink == nil {
		sink = span.NopSink()
	}
	if cfg.AsyncBuffer > 0 {
		a.async = span.NewAsyncSink(sink, cfg.AsyncBuffer, a.logger)
		sink = a.async
	}

	a.manager = span.NewManager(
		span.WithObserver(obs),
		span.WithResolver(resolver),
		span.WithPropagator(a.propagator),
		span.WithSink(sink),
	)
	return a, nil
}

// Manager returns the span manager, or nil on an inert Agent.
func (a *Agent) Manager() *span.Manager { return a.manager }

// Resolver returns the settings resolver, or nil on an inert Agent.
func (a *Agent) Resolver() *config.Resolver { return a.resolver }

// Coordinator returns the patch coordinator, or nil on an inert Agent.
func (a *Agent) Coordinator() *patch.Coordinator { return a.coordinator }

// Health returns the aggregator holding one check per integration, or nil on an
// inert Agent.
func (a *Agent) Health() *health.Aggregator { return a.health }

// Register adds an integration and its install-state health check.
func (a *Agent) Register(in patch.Integration) error {
	if a.disabled {
		return nil
	}
	if err := a.coordinator.Register(in); err != nil {
		return err
	}
	name := in.Descriptor().Name
	a.health.Register(name, a.coordinator.Checker(name))
	return nil
}

// InstrumentClient registers the outbound integration for c.
func (a *Agent) InstrumentClient(name string, c *http.Client, opts ...transport.Option) error {
	if a.disabled {
		return nil
	}
	return a.Register(&transport.Integration{Name: name, Client: c, Manager: a.manager, Options: opts})
}

// InstrumentChain registers the inbound tracing and request-tagging integrations for c.
func (a *Agent) InstrumentChain(c *chain.Chain) error {
	if a.disabled {
		return nil
	}
	err := a.Register(&httpserver.TraceIntegration{
		Chain:      c,
		Tracer:     a.observer.Tracer(),
		Propagator: a.propagator,
	})
	if err != nil {
		return err
	}
	return a.Register(&httpserver.Integration{Chain: c})
}

func gateOpen(cfg Config) bool {
	if !cfg.RequireEnv {
		return true
	}
	key := cfg.EnabledEnv
	if key == "" {
		key = DefaultEnabledEnv
	}
	return patch.EnvEnabled(key)
}

// Enabled reports whether the gate was open when the Agent was built.
func (a *Agent) Enabled() bool {
	return !a.disabled
}

// Start installs every registered integration. Install failures are logged and
// returned joined; the host keeps running without the failed integrations.
func (a *Agent) Start(ctx context.Context) error {
	if a.disabled {
		return nil
	}
	return a.coordinator.PatchAll(ctx)
}

// Mount serves the health endpoints on mux. An inert Agent mounts nothing.
func (a *Agent) Mount(mux *http.ServeMux) {
	if a.disabled {
		return
	}
	health.RegisterHandlers(mux, a.health)
}

// Shutdown drains queued records and flushes the telemetry providers.
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.disabled {
		return nil
	}
	if a.observer == nil {
		return ErrNotStarted
	}

	var errs []error
	if a.async != nil {
		if err := a.async.Close(ctx); err != nil && !errors.Is(err, span.ErrSinkClosed) {
			errs = append(errs, fmt.Errorf("sink shutdown: %w", err))
		}
	}
	if err := a.observer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
