package patch

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jonwraymond/apmcore/health"
	"github.com/jonwraymond/apmcore/observe"
)

type fakeIntegration struct {
	name    string
	version string
	calls   atomic.Int32
	patch   func(ctx context.Context) error
}

func (f *fakeIntegration) Descriptor() Descriptor {
	return Descriptor{Name: f.name, Version: f.version, Capabilities: []string{"distributed_tracing"}}
}

func (f *fakeIntegration) Patch(ctx context.Context) error {
	f.calls.Add(1)
	if f.patch != nil {
		return f.patch(ctx)
	}
	return nil
}

// TestCoordinator_PatchTransitions verifies a successful install records state and version.
func TestCoordinator_PatchTransitions(t *testing.T) {
	c := NewCoordinator()
	in := &fakeIntegration{name: "net/http", version: "go1.25.6"}
	if err := c.Register(in); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if got := c.State("net/http"); got != StateUnpatched {
		t.Fatalf("initial state = %v, want unpatched", got)
	}
	if _, ok := c.TargetVersion("net/http"); ok {
		t.Error("target version should be unknown before patching")
	}

	if err := c.Patch(context.Background(), "net/http"); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}

	if !c.Patched("net/http") {
		t.Errorf("state = %v, want patched", c.State("net/http"))
	}
	if v, ok := c.TargetVersion("net/http"); !ok || v != "go1.25.6" {
		t.Errorf("TargetVersion = %q, %v", v, ok)
	}
}

// TestCoordinator_PatchIdempotent verifies the integration is installed only once.
func TestCoordinator_PatchIdempotent(t *testing.T) {
	c := NewCoordinator()
	in := &fakeIntegration{name: "net/http"}
	_ = c.Register(in)

	for i := 0; i < 3; i++ {
		if err := c.Patch(context.Background(), "net/http"); err != nil {
			t.Fatalf("Patch #%d failed: %v", i, err)
		}
	}
	if got := in.calls.Load(); got != 1 {
		t.Errorf("integration patched %d times, want 1", got)
	}
}

// TestCoordinator_PatchConcurrent verifies racing callers block on one install.
func TestCoordinator_PatchConcurrent(t *testing.T) {
	c := NewCoordinator()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	in := &fakeIntegration{name: "net/http", patch: func(context.Context) error {
		once.Do(func() { close(started) })
		<-release
		return nil
	}}
	_ = c.Register(in)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Patch(context.Background(), "net/http")
		}()
	}

	<-started
	if got := c.State("net/http"); got != StatePatching {
		t.Errorf("state during install = %v, want patching", got)
	}
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Patch returned %v", err)
		}
	}
	if got := in.calls.Load(); got != 1 {
		t.Errorf("integration patched %d times, want 1", got)
	}
	if !c.Patched("net/http") {
		t.Error("expected patched after concurrent install")
	}
}

// TestCoordinator_PatchFailure verifies failures leave the integration unpatched and retryable.
func TestCoordinator_PatchFailure(t *testing.T) {
	var buf bytes.Buffer
	c := NewCoordinator(WithLogger(observe.NewLoggerWithWriter("info", &buf)))

	cause := errors.New("host pipeline missing")
	fail := true
	in := &fakeIntegration{name: "net/http", patch: func(context.Context) error {
		if fail {
			return cause
		}
		return nil
	}}
	_ = c.Register(in)

	err := c.Patch(context.Background(), "net/http")
	var perr *PatchError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PatchError, got %T %v", err, err)
	}
	if perr.Integration != "net/http" || !errors.Is(err, cause) {
		t.Errorf("unexpected PatchError: %+v", perr)
	}
	if c.State("net/http") != StateUnpatched {
		t.Errorf("state = %v, want unpatched", c.State("net/http"))
	}
	if !errors.Is(c.LastError("net/http"), cause) {
		t.Errorf("LastError = %v", c.LastError("net/http"))
	}
	if !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Errorf("expected a warning for the operator, got %q", buf.String())
	}

	fail = false
	if err := c.Patch(context.Background(), "net/http"); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if c.LastError("net/http") != nil {
		t.Error("LastError should clear after a successful install")
	}
}

// TestCoordinator_PatchPanicContained verifies a panicking integration never crashes the host.
func TestCoordinator_PatchPanicContained(t *testing.T) {
	c := NewCoordinator()
	_ = c.Register(&fakeIntegration{name: "broken", patch: func(context.Context) error {
		panic("incompatible version")
	}})

	err := c.Patch(context.Background(), "broken")
	if !errors.Is(err, ErrIntegrationPanicked) {
		t.Fatalf("expected ErrIntegrationPanicked, got %v", err)
	}
	if c.State("broken") != StateUnpatched {
		t.Errorf("state = %v, want unpatched", c.State("broken"))
	}
}

// TestCoordinator_Register verifies registration validation.
func TestCoordinator_Register(t *testing.T) {
	c := NewCoordinator()

	if err := c.Register(nil); !errors.Is(err, ErrInvalidIntegration) {
		t.Errorf("nil: expected ErrInvalidIntegration, got %v", err)
	}
	if err := c.Register(&fakeIntegration{name: " "}); !errors.Is(err, ErrInvalidIntegration) {
		t.Errorf("blank: expected ErrInvalidIntegration, got %v", err)
	}
	_ = c.Register(&fakeIntegration{name: "a", version: "1"})
	if err := c.Register(&fakeIntegration{name: "a"}); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("duplicate: expected ErrAlreadyRegistered, got %v", err)
	}
	_ = c.Register(&fakeIntegration{name: "b", version: "2"})

	var names []string
	for _, d := range c.Integrations() {
		names = append(names, d.Name)
	}
	if !slices.Equal(names, []string{"a", "b"}) {
		t.Errorf("Integrations() names = %v", names)
	}

	if err := c.Patch(context.Background(), "missing"); !errors.Is(err, ErrUnknownIntegration) {
		t.Errorf("expected ErrUnknownIntegration, got %v", err)
	}
}

// TestCoordinator_PatchAll verifies one failure does not stop the rest.
func TestCoordinator_PatchAll(t *testing.T) {
	c := NewCoordinator()
	good1 := &fakeIntegration{name: "good1"}
	bad := &fakeIntegration{name: "bad", patch: func(context.Context) error { return errors.New("nope") }}
	good2 := &fakeIntegration{name: "good2"}
	_ = c.Register(good1)
	_ = c.Register(bad)
	_ = c.Register(good2)

	err := c.PatchAll(context.Background())
	var perr *PatchError
	if !errors.As(err, &perr) || perr.Integration != "bad" {
		t.Fatalf("expected PatchError for bad, got %v", err)
	}
	if !c.Patched("good1") || !c.Patched("good2") {
		t.Error("healthy integrations should be patched")
	}
}

// TestCoordinator_Checker verifies install state maps to health status.
func TestCoordinator_Checker(t *testing.T) {
	c := NewCoordinator()
	_ = c.Register(&fakeIntegration{name: "ok", version: "v1"})
	_ = c.Register(&fakeIntegration{name: "bad", patch: func(context.Context) error { return errors.New("nope") }})
	_ = c.PatchAll(context.Background())
	_ = c.Register(&fakeIntegration{name: "idle"})

	tests := []struct {
		name string
		want health.Status
	}{
		{"ok", health.StatusHealthy},
		{"bad", health.StatusUnhealthy},
		{"idle", health.StatusDegraded},
		{"unknown", health.StatusUnhealthy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := c.Checker(tc.name).Check(context.Background()).Status; got != tc.want {
				t.Errorf("status = %v, want %v", got, tc.want)
			}
		})
	}

	r := c.Checker("ok").Check(context.Background())
	if r.Details["target_version"] != "v1" {
		t.Errorf("expected target_version detail, got %v", r.Details)
	}
}

// TestEnvEnabled verifies the accepted truthy spellings.
func TestEnvEnabled(t *testing.T) {
	tests := map[string]bool{"1": true, "true": true, "TRUE": true, " True ": true, "0": false, "yes": false, "": false}
	for value, want := range tests {
		t.Setenv("APM_SECURITY_ENABLED", value)
		if got := EnvEnabled("APM_SECURITY_ENABLED"); got != want {
			t.Errorf("EnvEnabled(%q) = %v, want %v", value, got, want)
		}
	}
}
