// Package span creates, tags, classifies and exports one observability record per
// physical request attempt.
//
// A Manager is shared by every outbound call. Start opens an Attempt for a request:
// it resolves per-target settings, starts a client span and writes or strips the
// propagation headers. End classifies the outcome, closes the span and hands an
// immutable Record to the Sink exactly once. Do wraps both around a single call.
//
// Retries never reuse an Attempt. Each physical try is started from the caller's
// request context, so N tries produce N sibling spans and N Records.
package span
