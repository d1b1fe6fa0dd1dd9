// Package chain models a host's ordered middleware pipeline.
//
// A Chain is mutated only while the host is being set up. Every insert is
// idempotent by middleware ID, and inserts relative to a missing marker fall
// back to Append so instrumentation is never dropped because a peer
// middleware is absent. Once the host starts serving, Freeze the chain and
// build the handler with Handler.
//
//	c := chain.New(
//	    chain.Entry{ID: "tracing.server", Middleware: traceMW},
//	    chain.Entry{ID: "recover", Middleware: recoverMW},
//	)
//	_ = c.InsertAfter("tracing.server", chain.Entry{ID: "security.request", Middleware: secMW})
//	c.Freeze()
//	http.ListenAndServe(":8080", c.Handler(mux))
package chain
