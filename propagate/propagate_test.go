package propagate

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func spanContext(sampled bool) trace.SpanContext {
	var flags trace.TraceFlags
	if sampled {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x30, 0x39},
		SpanID:     trace.SpanID{0, 0, 0, 0, 0, 0, 0x01, 0x00},
		TraceFlags: flags,
	})
}

func spanContext64() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    Uint64ToTraceID(12345),
		SpanID:     trace.SpanID{0, 0, 0, 0, 0, 0, 0x01, 0x00},
		TraceFlags: trace.FlagsSampled,
	})
}

// TestInject_DecimalValues verifies ids are written as decimal and the trace id is truncated.
func TestInject_DecimalValues(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(true))
	h := http.Header{}

	New().Inject(ctx, propagation.HeaderCarrier(h))

	if got := h.Get("x-datadog-trace-id"); got != "12345" {
		t.Errorf("trace id = %q, want 12345", got)
	}
	if got := h.Get("x-datadog-parent-id"); got != "256" {
		t.Errorf("parent id = %q, want 256", got)
	}
	if got := h.Get("x-datadog-sampling-priority"); got != "1" {
		t.Errorf("priority = %q, want 1", got)
	}
	if got := h.Get("x-datadog-tags"); got != "_dd.p.tid=deadbeef00000000" {
		t.Errorf("tags = %q, want _dd.p.tid=deadbeef00000000", got)
	}
}

// TestInject_NotSampled verifies priority 0 for unsampled spans.
func TestInject_NotSampled(t *testing.T) {
	ctx := trace.ContextWithSpanContext(context.Background(), spanContext(false))
	h := http.Header{}

	New().Inject(ctx, propagation.HeaderCarrier(h))

	if got := h.Get("x-datadog-sampling-priority"); got != "0" {
		t.Errorf("priority = %q, want 0", got)
	}
}

// TestHeaderSet_AllOrNothing verifies the header set is never partial.
func TestHeaderSet_AllOrNothing(t *testing.T) {
	p := New()
	withSpan := trace.ContextWithSpanContext(context.Background(), spanContext(true))

	tests := []struct {
		name   string
		ctx    context.Context
		active bool
		want   int
	}{
		{"active with span", withSpan, true, 4},
		{"active with 64-bit trace id", trace.ContextWithSpanContext(context.Background(), spanContext64()), true, 3},
		{"inactive", withSpan, false, 0},
		{"no span", context.Background(), true, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(p.HeaderSet(tc.ctx, tc.active)); got != tc.want {
				t.Errorf("len(HeaderSet) = %d, want %d", got, tc.want)
			}
		})
	}
}

// TestStrip verifies all three headers are removed and others kept.
func TestStrip(t *testing.T) {
	p := New()
	h := p.HeaderSet(trace.ContextWithSpanContext(context.Background(), spanContext(true)), true)
	h.Set("Accept", "text/plain")

	p.Strip(h)

	for _, k := range p.Fields() {
		if h.Get(k) != "" {
			t.Errorf("%s not stripped", k)
		}
	}
	if h.Get("Accept") != "text/plain" {
		t.Error("unrelated header removed")
	}
}

// TestExtract_RoundTrip verifies Extract restores the injected ids as a remote parent.
func TestExtract_RoundTrip(t *testing.T) {
	p := New()
	sc := spanContext(true)
	h := p.HeaderSet(trace.ContextWithSpanContext(context.Background(), sc), true)

	got := trace.SpanContextFromContext(p.Extract(context.Background(), propagation.HeaderCarrier(h)))

	if !got.IsRemote() {
		t.Error("extracted context should be remote")
	}
	if !got.IsSampled() {
		t.Error("extracted context should be sampled")
	}
	if got.TraceID() != sc.TraceID() {
		t.Errorf("trace id = %s, want %s", got.TraceID(), sc.TraceID())
	}
	if got.SpanID() != sc.SpanID() {
		t.Errorf("span id = %s, want %s", got.SpanID(), sc.SpanID())
	}
}

// TestExtract_Invalid verifies unusable headers leave the context unchanged.
func TestExtract_Invalid(t *testing.T) {
	p := New()
	tests := []struct {
		name string
		h    http.Header
	}{
		{"empty", http.Header{}},
		{"missing parent", http.Header{"X-Datadog-Trace-Id": {"1"}}},
		{"non numeric", http.Header{"X-Datadog-Trace-Id": {"abc"}, "X-Datadog-Parent-Id": {"2"}}},
		{"zero trace", http.Header{"X-Datadog-Trace-Id": {"0"}, "X-Datadog-Parent-Id": {"2"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := p.Extract(context.Background(), propagation.HeaderCarrier(tc.h))
			if trace.SpanContextFromContext(ctx).IsValid() {
				t.Error("expected no span context")
			}
		})
	}
}

// TestWithHeaderNames verifies custom header keys are honored.
func TestWithHeaderNames(t *testing.T) {
	p := New(WithHeaderNames(HeaderNames{TraceID: "t", ParentID: "p", SamplingPriority: "s"}))
	h := p.HeaderSet(trace.ContextWithSpanContext(context.Background(), spanContext(true)), true)

	if _, err := strconv.ParseUint(h.Get("t"), 10, 64); err != nil {
		t.Errorf("custom trace header missing: %v", err)
	}
	if h.Get("x-datadog-trace-id") != "" {
		t.Error("default header written despite custom names")
	}
}

// TestExtract_TraceIDHighTag verifies the upper trace id bits are restored from the tags header.
func TestExtract_TraceIDHighTag(t *testing.T) {
	p := New()
	base := http.Header{
		"X-Datadog-Trace-Id":  {"12345"},
		"X-Datadog-Parent-Id": {"256"},
	}
	tests := []struct {
		name string
		tags string
		want uint64
	}{
		{"absent", "", 0},
		{"only tag", "_dd.p.tid=deadbeef00000000", 0xdeadbeef00000000},
		{"among other tags", "_dd.p.dm=-1,_dd.p.tid=00000000000000ff", 0xff},
		{"too short", "_dd.p.tid=beef", 0},
		{"uppercase", "_dd.p.tid=DEADBEEF00000000", 0},
		{"not hex", "_dd.p.tid=zzzzzzzzzzzzzzzz", 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := base.Clone()
			if tc.tags != "" {
				h.Set("x-datadog-tags", tc.tags)
			}
			sc := trace.SpanContextFromContext(p.Extract(context.Background(), propagation.HeaderCarrier(h)))
			if !sc.IsValid() {
				t.Fatal("expected a span context")
			}
			if got := TraceIDHigh(sc.TraceID()); got != tc.want {
				t.Errorf("high bits = %x, want %x", got, tc.want)
			}
			if got := TraceIDToUint64(sc.TraceID()); got != 12345 {
				t.Errorf("low bits = %d, want 12345", got)
			}
		})
	}
}

// TestWithHeaderNames_NoTags verifies an empty tags key keeps the three-header form.
func TestWithHeaderNames_NoTags(t *testing.T) {
	p := New(WithHeaderNames(HeaderNames{TraceID: "t", ParentID: "p", SamplingPriority: "s"}))
	h := p.HeaderSet(trace.ContextWithSpanContext(context.Background(), spanContext(true)), true)

	if len(h) != 3 {
		t.Errorf("len(HeaderSet) = %d, want 3", len(h))
	}
	if len(p.Fields()) != 3 {
		t.Errorf("Fields() = %v, want three keys", p.Fields())
	}
}
