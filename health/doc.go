// Package health reports whether instrumentation is active.
//
// Each installed integration exposes a Checker (see patch.Coordinator.Checker).
// An Aggregator combines them, and the HTTP handlers expose the result to
// operators, so an integration that failed to install is visible without
// ever surfacing an error into request handling.
//
//	agg := health.NewAggregator()
//	agg.Register("net/http", coord.Checker("net/http"))
//	health.RegisterHandlers(mux, agg)
package health
