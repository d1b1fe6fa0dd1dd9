// Package propagate carries distributed-tracing context across process boundaries
// in three HTTP headers: trace id, parent span id and sampling priority.
//
// Ids are written as unsigned decimal integers. The trace id header carries the low
// 64 bits of the 128-bit trace id. When the upper 64 bits are non-zero they travel as
// the lowercase hex "_dd.p.tid" tag in a fourth header, so a 128-bit trace survives the
// round trip.
package propagate

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// HeaderNames are the header keys the Propagator reads and writes.
type HeaderNames struct {
	TraceID          string
	ParentID         string
	SamplingPriority string
	// Tags carries comma-separated key=value trace tags. Empty disables 128-bit ids.
	Tags             string
}

// DefaultHeaders are the names used by default.
var DefaultHeaders = HeaderNames{
	TraceID:          "x-datadog-trace-id",
	ParentID:         "x-datadog-parent-id",
	SamplingPriority: "x-datadog-sampling-priority",
	Tags:             "x-datadog-tags",
}

// TagTraceIDHigh is the trace tag holding the upper 64 bits of the trace id as
// 16 lowercase hex digits.
const TagTraceIDHigh = "_dd.p.tid"

// Sampling priority values.
const (
	PriorityReject = 0
	PriorityKeep   = 1
)

// Propagator implements propagation.TextMapPropagator.
type Propagator struct {
	names HeaderNames
}

var _ propagation.TextMapPropagator = (*Propagator)(nil)

// Option configures a Propagator.
type Option func(*Propagator)

// WithHeaderNames replaces the header keys.
func WithHeaderNames(n HeaderNames) Option {
	return func(p *Propagator) {
		p.names = n
	}
}

// New creates a Propagator using DefaultHeaders.
func New(opts ...Option) *Propagator {
	p := &Propagator{names: DefaultHeaders}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Names returns the header keys in use.
func (p *Propagator) Names() HeaderNames {
	return p.names
}

// Inject writes all three headers for the span in ctx, plus the tags header when
// the trace id has non-zero upper bits. Nothing is written when ctx carries no
// valid span context.
func (p *Propagator) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}

	priority := PriorityReject
	if sc.IsSampled() {
		priority = PriorityKeep
	}

	carrier.Set(p.names.TraceID, strconv.FormatUint(TraceIDToUint64(sc.TraceID()), 10))
	carrier.Set(p.names.ParentID, strconv.FormatUint(SpanIDToUint64(sc.SpanID()), 10))
	carrier.Set(p.names.SamplingPriority, strconv.Itoa(priority))

	if high := TraceIDHigh(sc.TraceID()); high != 0 && p.names.Tags != "" {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], high)
		carrier.Set(p.names.Tags, TagTraceIDHigh+"="+hex.EncodeToString(b[:]))
	}
}

// Extract returns ctx with a remote span context read from carrier. The trace and
// parent headers are both required; a missing priority means not sampled.
// Unusable headers leave ctx unchanged. A malformed "_dd.p.tid" tag is ignored and
// the trace id keeps zero upper bits.
func (p *Propagator) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	traceID, err := strconv.ParseUint(carrier.Get(p.names.TraceID), 10, 64)
	if err != nil || traceID == 0 {
		return ctx
	}
	parentID, err := strconv.ParseUint(carrier.Get(p.names.ParentID), 10, 64)
	if err != nil || parentID == 0 {
		return ctx
	}

	var flags trace.TraceFlags
	if v := carrier.Get(p.names.SamplingPriority); v != "" {
		if prio, err := strconv.Atoi(v); err == nil && prio > 0 {
			flags = trace.FlagsSampled
		}
	}

	tid := Uint64ToTraceID(traceID)
	if p.names.Tags != "" {
		if high, ok := parseTraceIDHigh(carrier.Get(p.names.Tags)); ok {
			binary.BigEndian.PutUint64(tid[:8], high)
		}
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    tid,
		SpanID:     Uint64ToSpanID(parentID),
		TraceFlags: flags,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}

// Fields returns the header keys Inject may set.
func (p *Propagator) Fields() []string {
	if p.names.Tags == "" {
		return []string{p.names.TraceID, p.names.ParentID, p.names.SamplingPriority}
	}
	return []string{p.names.TraceID, p.names.ParentID, p.names.SamplingPriority, p.names.Tags}
}

// parseTraceIDHigh finds TagTraceIDHigh in a tags header value.
func parseTraceIDHigh(tags string) (uint64, bool) {
	for _, kv := range strings.Split(tags, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) != TagTraceIDHigh {
			continue
		}
		v = strings.TrimSpace(v)
		if len(v) != 16 || strings.ToLower(v) != v {
			return 0, false
		}
		b, err := hex.DecodeString(v)
		if err != nil {
			return 0, false
		}
		return binary.BigEndian.Uint64(b), true
	}
	return 0, false
}

// HeaderSet returns the headers for the span in ctx when active is true. The result holds
// either all three id headers or none; the tags header only accompanies a full set.
func (p *Propagator) HeaderSet(ctx context.Context, active bool) http.Header {
	h := make(http.Header, 4)
	if active {
		p.Inject(ctx, propagation.HeaderCarrier(h))
	}
	return h
}

// Strip removes every header in Fields from h.
func (p *Propagator) Strip(h http.Header) {
	for _, k := range p.Fields() {
		h.Del(k)
	}
}

// TraceIDToUint64 returns the low 64 bits of id.
func TraceIDToUint64(id trace.TraceID) uint64 {
	return binary.BigEndian.Uint64(id[8:])
}

// TraceIDHigh returns the upper 64 bits of id.
func TraceIDHigh(id trace.TraceID) uint64 {
	return binary.BigEndian.Uint64(id[:8])
}

// SpanIDToUint64 returns id as an integer.
func SpanIDToUint64(id trace.SpanID) uint64 {
	return binary.BigEndian.Uint64(id[:])
}

// Uint64ToTraceID places v in the low 64 bits of a trace id.
func Uint64ToTraceID(v uint64) trace.TraceID {
	var id trace.TraceID
	binary.BigEndian.PutUint64(id[8:], v)
	return id
}

// Uint64ToSpanID converts v to a span id.
func Uint64ToSpanID(v uint64) trace.SpanID {
	var id trace.SpanID
	binary.BigEndian.PutUint64(id[:], v)
	return id
}
