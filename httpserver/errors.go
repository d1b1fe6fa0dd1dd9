package httpserver

import "errors"

// ErrNilChain is returned when an integration has no chain to install into.
var ErrNilChain = errors.New("httpserver: chain is nil")
