package httpserver

import (
	"net"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/apmcore/chain"
)

// Chain entry IDs.
const (
	TraceMiddlewareID   chain.ID = "tracing.server"
	RequestMiddlewareID chain.ID = "security.request"
)

// ServerSpanName is the name of inbound request spans.
const ServerSpanName = "http.server.request"

// TraceMiddleware returns the entry that starts a server span per request,
// parented to the context extracted by propagator.
func TraceMiddleware(tracer trace.Tracer, propagator propagation.TextMapPropagator) chain.Entry {
	return chain.Entry{
		ID: TraceMiddlewareID,
		Middleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
				ctx, span := tracer.Start(ctx, ServerSpanName,
					trace.WithSpanKind(trace.SpanKindServer),
					trace.WithAttributes(
						semconv.HTTPRequestMethodKey.String(r.Method),
						semconv.URLPath(r.URL.Path),
					),
				)
				defer span.End()

				sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
				next.ServeHTTP(sw, r.WithContext(ctx))

				span.SetAttributes(semconv.HTTPResponseStatusCode(sw.status))
				if sw.status >= http.StatusInternalServerError {
					span.SetStatus(codes.Error, http.StatusText(sw.status))
				}
			})
		},
	}
}

// RequestMiddleware returns the entry that tags the active span with the client
// address, user agent and matched route.
func RequestMiddleware() chain.Entry {
	return chain.Entry{
		ID: RequestMiddlewareID,
		Middleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				span := trace.SpanFromContext(r.Context())
				if span.IsRecording() {
					attrs := []attribute.KeyValue{semconv.ClientAddress(clientIP(r))}
					if ua := r.UserAgent(); ua != "" {
						attrs = append(attrs, semconv.UserAgentOriginal(ua))
					}
					span.SetAttributes(attrs...)
				}

				next.ServeHTTP(w, r)

				// The route is only known once the mux has matched.
				if span.IsRecording() && r.Pattern != "" {
					span.SetAttributes(semconv.HTTPRoute(r.Pattern))
				}
			})
		},
	}
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
