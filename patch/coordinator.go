package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/apmcore/observe"
)

// Descriptor identifies an integration. It is captured once at Register.
type Descriptor struct {
	// Name is the unique integration name, e.g. "net/http".
	Name string
	// Version is the detected version of the integrated library.
	Version string
	// Capabilities lists optional features, e.g. "distributed_tracing".
	Capabilities []string
}

// Integration installs instrumentation into one host library.
//
// Contract:
//   - Patch is called at most once at a time per integration and never again
//     after it succeeds.
//   - Patch must leave the host usable when it returns an error.
//   - Installs are serialized across integrations, so Patch must not call back
//     into the Coordinator.
type Integration interface {
	Descriptor() Descriptor
	Patch(ctx context.Context) error
}

type entry struct {
	integration   Integration
	desc          Descriptor
	state         State
	targetVersion string
	lastErr       error
}

// Coordinator tracks and drives installation of registered integrations.
type Coordinator struct {
	mu        sync.RWMutex
	installMu sync.Mutex // one integration installs at a time
	entries   map[string]*entry
	order     []string
	sf        singleflight.Group
	logger    observe.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger that receives install diagnostics.
func WithLogger(l observe.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCoordinator creates an empty Coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		entries: make(map[string]*entry),
		logger:  observe.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds an integration in the Unpatched state.
func (c *Coordinator) Register(in Integration) error {
	if in == nil {
		return ErrInvalidIntegration
	}
	desc := in.Descriptor()
	if strings.TrimSpace(desc.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidIntegration)
	}
	desc.Capabilities = slices.Clone(desc.Capabilities)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[desc.Name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, desc.Name)
	}
	c.entries[desc.Name] = &entry{integration: in, desc: desc}
	c.order = append(c.order, desc.Name)
	return nil
}

// Patch installs the named integration. It returns nil immediately when the
// integration is already Patched. Failures are returned as *PatchError.
func (c *Coordinator) Patch(ctx context.Context, name string) error {
	c.mu.RLock()
	e, ok := c.entries[name]
	patched := ok && e.state == StatePatched
	c.mu.RUnlock()

	if !ok {
		return &PatchError{Integration: name, Reason: "not registered", Err: ErrUnknownIntegration}
	}
	if patched {
		return nil
	}

	_, err, _ := c.sf.Do(name, func() (any, error) {
		return nil, c.install(ctx, e)
	})
	return err
}

// PatchAll installs every registered integration in registration order.
// A failing integration never prevents the others from being installed.
func (c *Coordinator) PatchAll(ctx context.Context) error {
	c.mu.RLock()
	names := slices.Clone(c.order)
	c.mu.RUnlock()

	var errs []error
	for _, name := range names {
		if err := c.Patch(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) install(ctx context.Context, e *entry) error {
	c.mu.Lock()
	if e.state == StatePatched {
		c.mu.Unlock()
		return nil
	}
	e.state = StatePatching
	c.mu.Unlock()

	c.installMu.Lock()
	err := safePatch(ctx, e.integration)
	c.installMu.Unlock()

	c.mu.Lock()
	if err != nil {
		reason := "install failed"
		if errors.Is(err, ErrIntegrationPanicked) {
			reason = "integration panicked"
		}
		perr := &PatchError{Integration: e.desc.Name, Reason: reason, Err: err}
		e.state = StateUnpatched
		e.lastErr = perr
		c.mu.Unlock()

		c.logger.Warn(ctx, "instrumentation failed to install, continuing without it",
			observe.F("integration", e.desc.Name),
			observe.F("error", perr),
		)
		return perr
	}
	e.state = StatePatched
	e.targetVersion = e.desc.Version
	e.lastErr = nil
	c.mu.Unlock()

	c.logger.Info(ctx, "instrumentation installed",
		observe.F("integration", e.desc.Name),
		observe.F("target_version", e.desc.Version),
	)
	return nil
}

func safePatch(ctx context.Context, in Integration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrIntegrationPanicked, r)
		}
	}()
	return in.Patch(ctx)
}

// State returns the install state of the named integration.
// Unknown names report StateUnpatched.
func (c *Coordinator) State(name string) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[name]; ok {
		return e.state
	}
	return StateUnpatched
}

// Patched reports whether the named integration is installed.
func (c *Coordinator) Patched(name string) bool {
	return c.State(name) == StatePatched
}

// TargetVersion returns the library version recorded when the integration was patched.
func (c *Coordinator) TargetVersion(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok || e.state != StatePatched {
		return "", false
	}
	return e.targetVersion, true
}

// LastError returns the most recent install failure, or nil.
func (c *Coordinator) LastError(name string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[name]; ok {
		return e.lastErr
	}
	return nil
}

// Integrations returns the registered descriptors in registration order.
func (c *Coordinator) Integrations() []Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Descriptor, 0, len(c.order))
	for _, name := range c.order {
		d := c.entries[name].desc
		d.Capabilities = slices.Clone(d.Capabilities)
		out = append(out, d)
	}
	return out
}

// EnvEnabled reports whether the environment variable key is "1" or "true"
// (case-insensitive). Hosts use it to gate PatchAll at startup.
func EnvEnabled(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true":
		return true
	default:
		return false
	}
}
