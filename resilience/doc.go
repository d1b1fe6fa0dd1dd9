// Package resilience drives repeated physical tries of an outbound request.
//
// Retry runs an operation up to MaxAttempts times with a backoff between tries.
// The operation receives the caller's context and the 1-based try number on every
// call; the package never derives one try's context from another's, so tries stay
// independent of each other.
//
//	retry := resilience.NewRetry(resilience.RetryConfig{
//	    MaxAttempts:  4,
//	    InitialDelay: 50 * time.Millisecond,
//	    RetryIf:      isTransportError,
//	})
//
//	err := retry.Execute(ctx, func(ctx context.Context, attempt int) error {
//	    return send(ctx)
//	})
package resilience
