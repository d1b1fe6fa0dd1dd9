package patch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIntegration indicates a nil integration or one without a name.
	ErrInvalidIntegration = errors.New("patch: integration is invalid")

	// ErrAlreadyRegistered indicates an integration name was registered twice.
	ErrAlreadyRegistered = errors.New("patch: integration already registered")

	// ErrUnknownIntegration indicates Patch was called for an unregistered name.
	ErrUnknownIntegration = errors.New("patch: unknown integration")

	// ErrIntegrationPanicked indicates the integration panicked while installing.
	ErrIntegrationPanicked = errors.New("patch: integration panicked")
)

// PatchError reports why an integration could not be installed.
// The integration remains Unpatched and the host is unaffected.
type PatchError struct {
	Integration string
	Reason      string
	Err         error
}

func (e *PatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("patch %s: %s", e.Integration, e.Reason)
	}
	return fmt.Sprintf("patch %s: %s: %v", e.Integration, e.Reason, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}
