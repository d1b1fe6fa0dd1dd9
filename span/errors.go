package span

import (
	"errors"
	"fmt"
)

// ErrSinkClosed indicates an export to an AsyncSink after Close.
var ErrSinkClosed = errors.New("span: sink is closed")

// PanicError wraps a value recovered from an instrumented call.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("span: instrumented call panicked: %v", e.Value)
}

// FailureKind reports "panic" to the classifier.
func (e *PanicError) FailureKind() string {
	return "panic"
}
