package span

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/apmcore/classify"
	"github.com/jonwraymond/apmcore/config"
	"github.com/jonwraymond/apmcore/observe"
	"github.com/jonwraymond/apmcore/propagate"
)

// Span naming and tagging constants.
const (
	SpanName      = "http.request"
	SpanType      = "http"
	ComponentName = "net/http"
	OperationName = "request"
)

// Attribute keys without a semantic-convention equivalent.
const (
	AttrComponent    = attribute.Key("component")
	AttrOperation    = attribute.Key("operation")
	AttrSpanType     = attribute.Key("span.type")
	AttrResourceName = attribute.Key("resource.name")
	AttrErrorMessage = attribute.Key("error.message")
)

// Manager owns the attempt lifecycle.
type Manager struct {
	tracer     trace.Tracer
	resolver   *config.Resolver
	classifier *classify.Classifier
	propagator *propagate.Propagator
	sink       Sink
	logger     observe.Logger
	metrics    observe.Metrics
	bodyLimit  int
	now        func() time.Time

	enabled atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithTracer sets the tracer spans are started on.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = t
	}
}

// WithResolver sets the per-target settings source.
func WithResolver(r *config.Resolver) Option {
	return func(m *Manager) {
		m.resolver = r
	}
}

// WithClassifier sets the error classifier.
func WithClassifier(c *classify.Classifier) Option {
	return func(m *Manager) {
		m.classifier = c
	}
}

// WithPropagator sets the header propagator.
func WithPropagator(p *propagate.Propagator) Option {
	return func(m *Manager) {
		m.propagator = p
	}
}

// WithSink sets where finished records go.
func WithSink(s Sink) Option {
	return func(m *Manager) {
		m.sink = s
	}
}

// WithLogger sets the logger for contained instrumentation failures.
func WithLogger(l observe.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics sets the per-attempt metrics recorder.
func WithMetrics(mt observe.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithEnabled sets the initial enabled flag. Default: true.
func WithEnabled(enabled bool) Option {
	return func(m *Manager) {
		m.enabled.Store(enabled)
	}
}

// WithBodyLimit bounds the response body captured by Do for error messages.
func WithBodyLimit(n int) Option {
	return func(m *Manager) {
		m.bodyLimit = n
	}
}

// WithObserver takes tracer, logger and metrics from obs, and starts enabled only when
// obs records traces.
func WithObserver(obs observe.Observer) Option {
	return func(m *Manager) {
		m.tracer = obs.Tracer()
		m.logger = obs.Logger()
		m.enabled.Store(obs.TracingEnabled())
		if mt, err := observe.NewMetrics(obs.Meter()); err == nil {
			m.metrics = mt
		} else {
			obs.Logger().Warn(context.Background(), "attempt metrics unavailable", observe.F("error", err))
		}
	}
}

// NewManager creates a Manager. Unset collaborators get working defaults: the global
// tracer provider, DefaultSettings, DefaultHeaders and a discarding sink.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		bodyLimit: DefaultBodyLimit,
		now:       time.Now,
	}
	m.enabled.Store(true)

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = observe.NopLogger()
	}
	if m.metrics == nil {
		m.metrics = observe.NopMetrics()
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(observe.InstrumentationName)
	}
	if m.resolver == nil {
		m.resolver = config.NewResolver(config.DefaultSettings())
	}
	if m.propagator == nil {
		m.propagator = propagate.New()
	}
	if m.sink == nil {
		m.sink = NopSink()
	}
	if m.classifier == nil {
		logger := m.logger
		m.classifier = classify.New(classify.WithErrorReporter(func(err error) {
			logger.Warn(context.Background(), "error handler failed; attempt recorded as success", observe.F("error", err))
		}))
	}
	return m
}

// SetEnabled turns instrumentation on or off. Attempts already started are unaffected.
func (m *Manager) SetEnabled(enabled bool) {
	m.enabled.Store(enabled)
}

// Enabled reports whether new attempts are instrumented.
func (m *Manager) Enabled() bool {
	return m.enabled.Load()
}

// Resolver returns the settings source.
func (m *Manager) Resolver() *config.Resolver {
	return m.resolver
}

// Propagator returns the header propagator.
func (m *Manager) Propagator() *propagate.Propagator {
	return m.propagator
}

// BodyLimit returns the number of body bytes captured for error messages.
func (m *Manager) BodyLimit() int {
	return m.bodyLimit
}

// Start opens an attempt for req and writes or strips its propagation headers.
// req.Header is modified in place.
func (m *Manager) Start(req *http.Request) *Attempt {
	return m.StartWithService(req, "")
}

// StartWithService is Start with a service name that takes precedence over the
// resolved one. An empty service means resolve normally.
func (m *Manager) StartWithService(req *http.Request, service string) *Attempt {
	host, port := hostPort(req.URL)
	a := &Attempt{
		ctx:    req.Context(),
		method: req.Method,
		host:   host,
		port:   port,
		path:   req.URL.Path,
		start:  m.now(),
	}
	a.setState(StateCreated)

	if req.Header == nil {
		req.Header = make(http.Header)
	}

	if !m.Enabled() {
		a.bypass = true
		m.propagator.Strip(req.Header)
		return a
	}

	a.eff = m.resolver.Resolve(host)
	a.service = a.eff.ServiceName
	if service != "" {
		a.service = service
	}

	a.parent = trace.SpanContextFromContext(a.ctx).SpanID()
	a.attrs = []attribute.KeyValue{
		semconv.ServiceName(a.service),
		semconv.HTTPRequestMethodKey.String(a.method),
		semconv.ServerAddress(host),
		semconv.ServerPort(port),
		semconv.URLPath(a.path),
		AttrComponent.String(ComponentName),
		AttrOperation.String(OperationName),
		AttrSpanType.String(SpanType),
		AttrResourceName.String(a.method),
	}

	a.ctx, a.span = m.tracer.Start(a.ctx, SpanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithTimestamp(a.start),
		trace.WithAttributes(a.attrs...),
	)
	a.setState(StateTagged)

	a.sent = m.propagator.HeaderSet(a.ctx, a.eff.DistributedTracing)
	m.propagator.Strip(req.Header)
	for k, v := range a.sent {
		req.Header[k] = v
	}
	a.injected = len(a.sent) > 0

	return a
}

// End classifies o, closes the span and exports the record. Only the first call
// for an attempt has any effect. Empty method, host or path in o are taken from
// the attempt.
func (m *Manager) End(a *Attempt, o classify.Outcome) {
	if a == nil {
		return
	}
	a.once.Do(func() {
		m.finish(a, o)
	})
}

func (m *Manager) finish(a *Attempt, o classify.Outcome) {
	end := m.now()

	if a.bypass {
		a.setState(StateFinished)
		return
	}

	if o.Method == "" {
		o.Method = a.method
	}
	if o.Host == "" {
		o.Host = a.host
	}
	if o.Path == "" {
		o.Path = a.path
	}

	res := m.classifier.Classify(o, a.eff.ErrorHandler)
	if res.IsError {
		a.setState(StateErrored)
	} else {
		a.setState(StateCompleted)
	}

	attrs := append([]attribute.KeyValue(nil), a.attrs...)
	if o.StatusCode > 0 {
		kv := semconv.HTTPResponseStatusCode(o.StatusCode)
		attrs = append(attrs, kv)
		a.span.SetAttributes(kv)
	}
	if res.IsError {
		errAttrs := []attribute.KeyValue{
			semconv.ErrorTypeKey.String(res.Kind),
			AttrErrorMessage.String(res.Message),
		}
		attrs = append(attrs, errAttrs...)
		a.span.SetAttributes(errAttrs...)
		if o.Err != nil {
			a.span.RecordError(o.Err)
		}
		a.span.SetStatus(codes.Error, res.Message)
	}
	a.span.End(trace.WithTimestamp(end))

	sc := a.span.SpanContext()
	rec := Record{
		Name:            SpanName,
		Service:         a.service,
		Resource:        a.method,
		SpanType:        SpanType,
		TraceID:         sc.TraceID(),
		SpanID:          sc.SpanID(),
		ParentSpanID:    a.parent,
		Start:           a.start,
		End:             end,
		Method:          a.method,
		Host:            a.host,
		Port:            a.port,
		Path:            a.path,
		StatusCode:      o.StatusCode,
		Error:           res.IsError,
		ErrorKind:       res.Kind,
		ErrorMessage:    res.Message,
		HeadersInjected: a.injected,
		Attributes:      attrs,
	}
	a.setState(StateFinished)

	m.export(a.ctx, rec)
	m.metrics.RecordAttempt(a.ctx, observe.AttemptMeta{
		Service:   rec.Service,
		Method:    rec.Method,
		Host:      rec.Host,
		ErrorKind: rec.ErrorKind,
	}, rec.Duration(), rec.Error)
}

func (m *Manager) export(ctx context.Context, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error(ctx, "record sink panicked", observe.F("panic", r), observe.F("service", rec.Service))
		}
	}()
	m.sink.Export(rec)
}

// Do runs fn as one instrumented attempt. fn receives req bound to the attempt's
// context. Its response and error are returned unchanged. If fn panics the attempt
// is finished with kind "panic" and the panic continues.
func (m *Manager) Do(req *http.Request, fn func(*http.Request) (*http.Response, error)) (*http.Response, error) {
	return m.DoWithService(req, "", fn)
}

// DoWithService is Do with a service name override, as in StartWithService.
func (m *Manager) DoWithService(req *http.Request, service string, fn func(*http.Request) (*http.Response, error)) (resp *http.Response, err error) {
	a := m.StartWithService(req, service)
	req = req.WithContext(a.Context())

	defer func() {
		if r := recover(); r != nil {
			m.End(a, classify.Outcome{Err: &PanicError{Value: r}})
			panic(r)
		}
	}()

	resp, err = fn(req)
	m.End(a, m.Outcome(a, resp, err))
	return resp, err
}

// Outcome builds the classification input for a finished call. For non-2xx/3xx
// responses up to BodyLimit bytes of the body are captured and restored.
func (m *Manager) Outcome(a *Attempt, resp *http.Response, err error) classify.Outcome {
	o := classify.Outcome{Err: err}
	if a != nil {
		o.Method, o.Host, o.Path = a.method, a.host, a.path
	}
	if err == nil && resp != nil {
		o.StatusCode = resp.StatusCode
		if resp.StatusCode >= 400 && a != nil && !a.bypass {
			o.Body = PeekBody(resp, m.bodyLimit)
		}
	}
	return o
}

func hostPort(u *url.URL) (string, int) {
	if u == nil {
		return "", 0
	}
	host := u.Hostname()
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return host, n
		}
	}
	switch u.Scheme {
	case "https":
		return host, 443
	case "http":
		return host, 80
	}
	return host, 0
}
