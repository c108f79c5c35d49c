package approval

import (
	"errors"
	"fmt"
)

// ErrDenied is matched by every DeniedError.
var ErrDenied = errors.New("tool call denied by user")

// DeniedError stops the current turn. Err is set when the operator could not
// be asked at all, e.g. stdin closed or the context was canceled.
type DeniedError struct {
	Tool string
	Err  error
}

func (e *DeniedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool '%s' was denied: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("tool '%s' was denied by user", e.Tool)
}

func (e *DeniedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDenied}
	}
	return []error{ErrDenied, e.Err}
}
