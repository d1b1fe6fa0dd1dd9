package httpserver

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/apmcore/chain"
	"github.com/jonwraymond/apmcore/patch"
	"github.com/jonwraymond/apmcore/propagate"
	"github.com/jonwraymond/apmcore/span"
)

func passthrough(next http.Handler) http.Handler { return next }

func entry(id string) chain.Entry {
	return chain.Entry{ID: chain.ID(id), Middleware: passthrough}
}

// randomChain builds a chain of host entries, with the trace entry at a random
// position when withMarker is set.
func randomChain(rng *rand.Rand, withMarker bool) *chain.Chain {
	n := rng.IntN(6)
	entries := make([]chain.Entry, 0, n+1)
	for i := 0; i < n; i++ {
		entries = append(entries, entry("host."+strconv.Itoa(i)))
	}
	if withMarker {
		at := rng.IntN(n + 1)
		entries = slices.Insert(entries, at, TraceMiddleware(sdktrace.NewTracerProvider().Tracer("t"), propagate.New()))
	}
	return chain.New(entries...)
}

// TestIntegration_PatchTwiceEqualsOnce verifies repeated installs leave the chain unchanged.
func TestIntegration_PatchTwiceEqualsOnce(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 50; i++ {
		c := randomChain(rng, i%2 == 0)
		in := &Integration{Chain: c}

		if err := in.Patch(context.Background()); err != nil {
			t.Fatal(err)
		}
		once := c.IDs()

		if err := in.Patch(context.Background()); err != nil {
			t.Fatal(err)
		}
		if twice := c.IDs(); !slices.Equal(once, twice) {
			t.Fatalf("chain changed on second patch: %v -> %v", once, twice)
		}
	}
}

// TestIntegration_PositionAfterTracing verifies the request entry lands right after tracing.
func TestIntegration_PositionAfterTracing(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 50; i++ {
		c := randomChain(rng, true)
		marker := c.Index(TraceMiddlewareID)

		if err := (&Integration{Chain: c}).Patch(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := c.Index(RequestMiddlewareID); got != marker+1 {
			t.Fatalf("index = %d, want %d in %v", got, marker+1, c.IDs())
		}
	}
}

// TestIntegration_NoMarkerAppends verifies the fallback position.
func TestIntegration_NoMarkerAppends(t *testing.T) {
	c := chain.New(entry("host.a"), entry("host.b"))

	if err := (&Integration{Chain: c}).Patch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.Index(RequestMiddlewareID); got != c.Len()-1 {
		t.Errorf("index = %d, want last", got)
	}
}

// TestIntegration_Errors verifies nil and frozen chains are reported.
func TestIntegration_Errors(t *testing.T) {
	if err := (&Integration{}).Patch(context.Background()); !errors.Is(err, ErrNilChain) {
		t.Errorf("nil chain = %v, want ErrNilChain", err)
	}
	if err := (&TraceIntegration{}).Patch(context.Background()); !errors.Is(err, ErrNilChain) {
		t.Errorf("nil chain = %v, want ErrNilChain", err)
	}

	c := chain.New(entry("host.a"))
	c.Freeze()
	coord := patch.NewCoordinator()
	_ = coord.Register(&Integration{Chain: c})

	err := coord.Patch(context.Background(), RequestIntegrationName)
	if !errors.Is(err, chain.ErrFrozen) {
		t.Errorf("frozen chain = %v, want ErrFrozen", err)
	}
	if coord.State(RequestIntegrationName) != patch.StateUnpatched {
		t.Error("failed install must leave the integration unpatched")
	}
}

// TestTraceIntegration_Outermost verifies tracing is placed first.
func TestTraceIntegration_Outermost(t *testing.T) {
	c := chain.New(entry("host.a"), entry("host.b"))

	in := &TraceIntegration{Chain: c}
	if err := in.Patch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := in.Patch(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := c.IDs(); got[0] != TraceMiddlewareID || len(got) != 3 {
		t.Errorf("IDs() = %v", got)
	}

	empty := chain.New()
	if err := (&TraceIntegration{Chain: empty}).Patch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if empty.Index(TraceMiddlewareID) != 0 {
		t.Error("trace entry not appended to empty chain")
	}
}

// TestPipeline_EndToEnd verifies the installed pipeline continues the caller's trace
// and tags the server span.
func TestPipeline_EndToEnd(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	p := propagate.New()

	c := chain.New(entry("host.logging"))
	coord := patch.NewCoordinator()
	_ = coord.Register(&TraceIntegration{Chain: c, Tracer: tp.Tracer("server"), Propagator: p})
	_ = coord.Register(&Integration{Chain: c})
	if err := coord.PatchAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Freeze()

	if want := []chain.ID{TraceMiddlewareID, RequestMiddlewareID, "host.logging"}; !slices.Equal(c.IDs(), want) {
		t.Fatalf("IDs() = %v, want %v", c.IDs(), want)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := c.Handler(mux)

	req := httptest.NewRequest(http.MethodGet, "/users/7", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	req.Header.Set("User-Agent", "checkout-client/1.0")
	req.Header.Set("x-datadog-trace-id", "12345")
	req.Header.Set("x-datadog-parent-id", "678")
	req.Header.Set("x-datadog-sampling-priority", "1")

	rw := httptest.NewRecorder()
	handler.ServeHTTP(rw, req)

	if rw.Code != http.StatusTeapot {
		t.Errorf("status = %d", rw.Code)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	s := spans[0]
	if s.SpanKind() != trace.SpanKindServer {
		t.Errorf("kind = %s", s.SpanKind())
	}
	if got := propagate.TraceIDToUint64(s.SpanContext().TraceID()); got != 12345 {
		t.Errorf("trace id = %d, want 12345", got)
	}
	if got := propagate.SpanIDToUint64(s.Parent().SpanID()); got != 678 {
		t.Errorf("parent id = %d, want 678", got)
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	checks := map[attribute.Key]string{
		"client.address":      "10.0.0.9",
		"user_agent.original": "checkout-client/1.0",
		"http.route":          "GET /users/{id}",
	}
	for k, want := range checks {
		if got := attrs[k].AsString(); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if got := attrs["http.response.status_code"].AsInt64(); got != http.StatusTeapot {
		t.Errorf("status attribute = %d", got)
	}
}

// TestPipeline_ClientServerSameTrace verifies a client attempt and the server span it
// reaches share the full 128-bit trace id.
func TestPipeline_ClientServerSameTrace(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	p := propagate.New()

	c := chain.New()
	if err := (&TraceIntegration{Chain: c, Tracer: tp.Tracer("server"), Propagator: p}).Patch(context.Background()); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(c.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
	defer srv.Close()

	rec := span.NewRecorder()
	m := span.NewManager(span.WithTracer(tp.Tracer("client")), span.WithPropagator(p), span.WithSink(rec))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/orders", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := m.Do(req, srv.Client().Transport.RoundTrip)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	records := rec.Records()
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	client := records[0]
	if propagate.TraceIDHigh(client.TraceID) == 0 {
		t.Fatal("expected a 128-bit client trace id")
	}

	var server sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.SpanKind() == trace.SpanKindServer {
			server = s
		}
	}
	if server == nil {
		t.Fatal("no server span recorded")
	}
	if got := server.SpanContext().TraceID(); got != client.TraceID {
		t.Errorf("server trace id = %s, client record trace id = %s", got, client.TraceID)
	}
	if got := server.Parent().SpanID(); got != client.SpanID {
		t.Errorf("server parent = %s, client span = %s", got, client.SpanID)
	}
}
