package config

import (
	"fmt"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/apmcore/classify"
)

// DefaultServiceName is the service name of outbound HTTP attempts when nothing overrides it.
const DefaultServiceName = "http.client"

// Settings are the global defaults.
type Settings struct {
	ServiceName        string
	SplitByDomain      bool
	DistributedTracing bool
	// ErrorHandler is nil for the default 5xx policy.
	ErrorHandler classify.ErrorHandler
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		ServiceName:        DefaultServiceName,
		SplitByDomain:      false,
		DistributedTracing: true,
	}
}

// Override is a partial settings record applied to hosts matching Pattern.
// Nil fields inherit from the defaults.
type Override struct {
	Pattern            *regexp.Regexp
	ServiceName        *string
	SplitByDomain      *bool
	DistributedTracing *bool
	ErrorHandler       classify.ErrorHandler
}

// Option sets one field of an Override.
type Option func(*Override)

// WithServiceName sets the service name for matching hosts.
func WithServiceName(name string) Option {
	return func(o *Override) {
		o.ServiceName = &name
	}
}

// WithSplitByDomain names the service after the target host.
func WithSplitByDomain(enabled bool) Option {
	return func(o *Override) {
		o.SplitByDomain = &enabled
	}
}

// WithDistributedTracing toggles header propagation for matching hosts.
func WithDistributedTracing(enabled bool) Option {
	return func(o *Override) {
		o.DistributedTracing = &enabled
	}
}

// WithErrorHandler replaces the error policy for matching hosts.
func WithErrorHandler(h classify.ErrorHandler) Option {
	return func(o *Override) {
		o.ErrorHandler = h
	}
}

// Effective is the resolved configuration for one target.
type Effective struct {
	ServiceName        string
	SplitByDomain      bool
	DistributedTracing bool
	ErrorHandler       classify.ErrorHandler
	// Pattern is the matching override pattern, or empty when defaults applied.
	Pattern string
}

type snapshot struct {
	defaults  Settings
	overrides []Override
}

// Resolver maps target hosts to effective settings.
//
// Resolve is lock-free and safe to call from any goroutine while overrides are being
// registered; it always sees either the list before or after a registration.
type Resolver struct {
	mu   sync.Mutex // serializes writers
	snap atomic.Pointer[snapshot]
}

// NewResolver creates a Resolver with the given defaults and no overrides.
func NewResolver(defaults Settings) *Resolver {
	r := &Resolver{}
	r.snap.Store(&snapshot{defaults: defaults})
	return r
}

// Describe registers an override for hosts matching pattern.
// Overrides are consulted in registration order.
func (r *Resolver) Describe(pattern string, opts ...Option) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidPattern, pattern, err)
	}
	return r.DescribeRegexp(re, opts...)
}

// DescribeRegexp registers an override with a precompiled pattern.
func (r *Resolver) DescribeRegexp(re *regexp.Regexp, opts ...Option) error {
	if re == nil {
		return ErrNilPattern
	}

	o := Override{Pattern: re}
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	next := make([]Override, len(cur.overrides), len(cur.overrides)+1)
	copy(next, cur.overrides)
	next = append(next, o)
	r.snap.Store(&snapshot{defaults: cur.defaults, overrides: next})
	return nil
}

// SetDefaults replaces the global defaults. Overrides are kept.
func (r *Resolver) SetDefaults(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	r.snap.Store(&snapshot{defaults: s, overrides: cur.overrides})
}

// Defaults returns the global defaults.
func (r *Resolver) Defaults() Settings {
	return r.snap.Load().defaults
}

// Overrides returns a copy of the registered overrides in registration order.
func (r *Resolver) Overrides() []Override {
	cur := r.snap.Load().overrides
	out := make([]Override, len(cur))
	copy(out, cur)
	return out
}

// Reset restores DefaultSettings and drops every override.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snap.Store(&snapshot{defaults: DefaultSettings()})
}

// Resolve returns the effective settings for host.
func (r *Resolver) Resolve(host string) Effective {
	snap := r.snap.Load()
	d := snap.defaults

	eff := Effective{
		ServiceName:        d.ServiceName,
		SplitByDomain:      d.SplitByDomain,
		DistributedTracing: d.DistributedTracing,
		ErrorHandler:       d.ErrorHandler,
	}

	var matched *Override
	for i := range snap.overrides {
		if snap.overrides[i].Pattern.MatchString(host) {
			matched = &snap.overrides[i]
			break
		}
	}

	explicitName := false
	if matched != nil {
		eff.Pattern = matched.Pattern.String()
		if matched.ServiceName != nil {
			eff.ServiceName = *matched.ServiceName
			explicitName = true
		}
		if matched.SplitByDomain != nil {
			eff.SplitByDomain = *matched.SplitByDomain
		}
		if matched.DistributedTracing != nil {
			eff.DistributedTracing = *matched.DistributedTracing
		}
		if matched.ErrorHandler != nil {
			eff.ErrorHandler = matched.ErrorHandler
		}
	}

	if eff.SplitByDomain && !explicitName && host != "" {
		eff.ServiceName = host
	}
	return eff
}
