package transport

import "errors"

// ErrNilClient is returned when an Integration has no client to patch.
var ErrNilClient = errors.New("transport: client is nil")

// ErrNilManager is returned when an Integration has no span manager.
var ErrNilManager = errors.New("transport: span manager is nil")
