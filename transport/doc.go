// Package transport instruments outbound HTTP clients.
//
// Transport wraps an http.RoundTripper. Every physical try, retries included, is
// recorded as its own span.Attempt on a clone of the request, so a request that is
// tried four times produces four records. Integration installs a Transport into an
// http.Client through the patch coordinator.
package transport
