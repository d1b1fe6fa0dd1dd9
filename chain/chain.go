package chain

import (
	"fmt"
	"net/http"
	"slices"
)

// ID identifies a middleware within a chain. Membership is decided by ID alone.
type ID string

// Middleware wraps the next handler in the pipeline.
type Middleware func(next http.Handler) http.Handler

// Entry is one middleware in the chain.
type Entry struct {
	ID         ID
	Middleware Middleware
}

func (e Entry) validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidEntry)
	}
	if e.Middleware == nil {
		return fmt.Errorf("%w: %q has nil middleware", ErrInvalidEntry, e.ID)
	}
	return nil
}

// Chain is an ordered middleware pipeline with no duplicate IDs.
//
// Contract:
//   - Concurrency: not safe for concurrent mutation; callers serialize setup.
//     Reads after Freeze are safe from any goroutine.
//   - Idempotency: inserting an ID that is already present is a no-op.
type Chain struct {
	entries []Entry
	frozen  bool
}

// New creates a chain from entries in order. Later duplicates of an ID are
// dropped and invalid entries are skipped.
func New(entries ...Entry) *Chain {
	c := &Chain{entries: make([]Entry, 0, len(entries))}
	for _, e := range entries {
		if e.validate() != nil || c.Contains(e.ID) {
			continue
		}
		c.entries = append(c.entries, e)
	}
	return c
}

// Contains reports whether id is in the chain.
func (c *Chain) Contains(id ID) bool {
	return c.Index(id) >= 0
}

// Index returns the position of id, or -1 when absent.
func (c *Chain) Index(id ID) int {
	return slices.IndexFunc(c.entries, func(e Entry) bool { return e.ID == id })
}

// Len returns the number of middleware in the chain.
func (c *Chain) Len() int {
	return len(c.entries)
}

// IDs returns the middleware IDs in order.
func (c *Chain) IDs() []ID {
	ids := make([]ID, len(c.entries))
	for i, e := range c.entries {
		ids[i] = e.ID
	}
	return ids
}

// Append adds e at the end of the chain.
func (c *Chain) Append(e Entry) error {
	return c.insert(len(c.entries), e)
}

// InsertAfter places e immediately after marker. When marker is absent, e is appended.
func (c *Chain) InsertAfter(marker ID, e Entry) error {
	i := c.Index(marker)
	if i < 0 {
		return c.Append(e)
	}
	return c.insert(i+1, e)
}

// InsertBefore places e immediately before marker. When marker is absent, e is appended.
func (c *Chain) InsertBefore(marker ID, e Entry) error {
	i := c.Index(marker)
	if i < 0 {
		return c.Append(e)
	}
	return c.insert(i, e)
}

func (c *Chain) insert(at int, e Entry) error {
	if err := e.validate(); err != nil {
		return err
	}
	if c.Contains(e.ID) {
		return nil
	}
	if c.frozen {
		return fmt.Errorf("%w: cannot insert %q", ErrFrozen, e.ID)
	}
	c.entries = slices.Insert(c.entries, at, e)
	return nil
}

// Freeze makes the chain read-only. It is safe to call more than once.
func (c *Chain) Freeze() {
	c.frozen = true
}

// Frozen reports whether Freeze has been called.
func (c *Chain) Frozen() bool {
	return c.frozen
}

// Handler composes the chain around final. The first entry is the outermost.
func (c *Chain) Handler(final http.Handler) http.Handler {
	h := final
	for i := len(c.entries) - 1; i >= 0; i-- {
		h = c.entries[i].Middleware(h)
	}
	return h
}
