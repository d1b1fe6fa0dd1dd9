// Package httpserver instruments inbound net/http pipelines.
//
// It provides two chain entries: TraceMiddleware opens a server span for each request
// and continues any trace propagated by the caller, and RequestMiddleware tags that
// span with facts about the request. The integrations place them into a chain.Chain
// so that request tagging always runs directly inside tracing.
package httpserver
