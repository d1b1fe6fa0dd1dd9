// Package classify decides whether a finished request attempt is an error.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Failure kinds reported for transport-level errors.
const (
	KindTimeout    = "timeout"
	KindCanceled   = "canceled"
	KindConnection = "connection"
)

// Outcome is what an attempt produced: a response status and body, or a transport error.
type Outcome struct {
	Method     string
	Host       string
	Path       string
	StatusCode int
	// Body is the response body text, when it was captured.
	Body string
	// Err is the transport failure. A non-nil Err means no response was received.
	Err error
}

// Result is the classification of one attempt.
type Result struct {
	IsError bool
	Kind    string
	Message string
}

// ErrorHandler decides whether a completed response is an error.
// It replaces the default 5xx policy; transport failures bypass it.
type ErrorHandler func(Outcome) bool

// ClassificationError reports a custom ErrorHandler that panicked.
// The attempt it was classifying is treated as not-an-error.
type ClassificationError struct {
	Outcome Outcome
	Cause   any
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classify: error handler panicked on %s %s (status %d): %v",
		e.Outcome.Method, e.Outcome.Host, e.Outcome.StatusCode, e.Cause)
}

// Classifier applies the error policy.
type Classifier struct {
	report func(error)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithErrorReporter receives ClassificationErrors from misbehaving handlers.
func WithErrorReporter(fn func(error)) Option {
	return func(c *Classifier) {
		c.report = fn
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultPolicy marks 5xx responses as errors. 4xx is deliberately not an error.
func DefaultPolicy(o Outcome) bool {
	return o.StatusCode >= 500
}

// Classify returns the classification of o. A nil handler selects DefaultPolicy.
func (c *Classifier) Classify(o Outcome, handler ErrorHandler) Result {
	if o.Err != nil {
		return Result{IsError: true, Kind: FailureKind(o.Err), Message: o.Err.Error()}
	}

	if handler == nil {
		handler = DefaultPolicy
	}
	if !c.decide(o, handler) {
		return Result{}
	}
	return Result{
		IsError: true,
		Kind:    "Error " + strconv.Itoa(o.StatusCode),
		Message: o.Body,
	}
}

func (c *Classifier) decide(o Outcome, handler ErrorHandler) (isError bool) {
	defer func() {
		if r := recover(); r != nil {
			isError = false
			if c.report != nil {
				c.report(&ClassificationError{Outcome: o, Cause: r})
			}
		}
	}()
	return handler(o)
}

// Kinded is implemented by errors that name their own failure kind.
type Kinded interface {
	FailureKind() string
}

// FailureKind names the category of a transport failure.
func FailureKind(err error) string {
	var k Kinded
	if errors.As(err, &k) {
		return k.FailureKind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return KindConnection
	}

	return fmt.Sprintf("%T", err)
}
