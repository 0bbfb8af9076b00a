package resource

import (
	"errors"
	"fmt"
)

// Error taxonomy produced by the generic CRUD path. Anything outside these
// four surfaces as a generic failure in the HTTP layer.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Error pairs one of the taxonomy sentinels with a caller-facing message.
// The message travels verbatim into the response body.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Kind }

// BadRequestf builds a BadRequest error with a formatted message.
func BadRequestf(format string, args ...any) error {
	return &Error{Kind: ErrBadRequest, Message: fmt.Sprintf(format, args...)}
}

// MessageOf extracts the caller-facing message from an error, falling back to
// the bare sentinel text.
func MessageOf(err error) string {
	var re *Error
	if errors.As(err, &re) {
		if re.Message != "" {
			return re.Message
		}
		return re.Kind.Error()
	}
	return err.Error()
}

// ValidationError is raised by deserializers and entity validators. The
// orchestrator converts it into a BadRequest carrying the message verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
