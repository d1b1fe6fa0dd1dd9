package resilience

import "errors"

// ErrNilOperation is returned by Execute when op is nil.
var ErrNilOperation = errors.New("resilience: operation is nil")
