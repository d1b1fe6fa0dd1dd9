package span

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Record is the immutable snapshot of a finished attempt.
type Record struct {
	Name     string
	Service  string
	Resource string
	SpanType string

	TraceID      trace.TraceID
	SpanID       trace.SpanID
	ParentSpanID trace.SpanID

	Start time.Time
	End   time.Time

	Method     string
	Host       string
	Port       int
	Path       string
	StatusCode int

	Error        bool
	ErrorKind    string
	ErrorMessage string

	// HeadersInjected reports whether propagation headers were sent.
	HeadersInjected bool

	Attributes []attribute.KeyValue
}

// Duration returns End minus Start.
func (r Record) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Sink receives finished records. Export is called once per attempt from the
// goroutine that finished it and must not retain the record's slices for mutation.
type Sink interface {
	Export(Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Record)

// Export calls f(r).
func (f SinkFunc) Export(r Record) { f(r) }

type nopSink struct{}

func (nopSink) Export(Record) {}

// NopSink returns a Sink that discards records.
func NopSink() Sink { return nopSink{} }

// Recorder is a Sink that keeps every record in memory.
type Recorder struct {
	mu      sync.Mutex
	records []Record
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Export appends r.
func (r *Recorder) Export(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of the records exported so far, in export order.
func (r *Recorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Reset drops every record.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
