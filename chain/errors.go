package chain

import "errors"

var (
	// ErrInvalidEntry indicates an entry with an empty ID or nil Middleware.
	ErrInvalidEntry = errors.New("chain: entry is invalid")

	// ErrFrozen indicates a mutation was attempted after Freeze.
	ErrFrozen = errors.New("chain: chain is frozen")
)
