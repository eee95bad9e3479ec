package beacon

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Start and Stop is an *Error whose Kind
// is one of these, so callers can match with errors.Is.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrRadioUnavailable     = errors.New("bluetooth is disabled or not available")
	ErrPermissionDenied     = errors.New("bluetooth permissions are missing or denied")
	ErrNotAdvertising       = errors.New("no advertising in progress")
	ErrRadio                = errors.New("radio error")
)

// Error is a typed controller outcome. Err carries the underlying cause, if any.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("beacon %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("beacon %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// radioError classifies a capability failure: permission problems keep their
// own kind, anything else is an opaque radio error.
func radioError(op string, err error) *Error {
	if errors.Is(err, ErrPermissionDenied) {
		return &Error{Op: op, Kind: ErrPermissionDenied, Err: err}
	}
	return &Error{Op: op, Kind: ErrRadio, Err: err}
}
