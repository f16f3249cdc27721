package journal

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDriver   = errors.New("unsupported journal driver")
	ErrMissingDatabase = errors.New("journal database is required")
	ErrMissingHost     = errors.New("journal host is required")
	ErrInvalidPort     = errors.New("invalid journal port")
	ErrInvalidPool     = errors.New("invalid connection pool settings")
	ErrInvalidTimeout  = errors.New("timeout must be positive")
	ErrInvalidLimit    = errors.New("invalid query limit")
	ErrClosed          = errors.New("journal is closed")
)

// Error wraps a driver failure with the journal operation that caused it
type Error struct {
	Operation string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("journal %s: %s: %v", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("journal %s: %s", e.Operation, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(op, msg string, cause error) *Error {
	return &Error{Operation: op, Message: msg, Cause: cause}
}
