package grid

import (
	"errors"
	"fmt"

	"fluxgrid.ai/internal/protocol"
)

// Error carries a protocol error code alongside the operation that
// rejected. All grid operations fail with *Error; callers dispatch on
// Code rather than message text.
type Error struct {
	Code string
	Op   string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, e.Msg)
}

// CodeOf extracts the protocol code from any error returned by the grid.
func CodeOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	if err != nil {
		return protocol.ErrInternal
	}
	return ""
}

// IsCode reports whether err carries the given protocol code.
func IsCode(err error, code string) bool {
	return CodeOf(err) == code
}

func errNotFound(op, format string, args ...any) *Error {
	return &Error{Code: protocol.ErrNotFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func errAlreadyExists(op, format string, args ...any) *Error {
	return &Error{Code: protocol.ErrAlreadyExists, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func errUnauthorized(op, format string, args ...any) *Error {
	return &Error{Code: protocol.ErrUnauthorized, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func errTypeMismatch(op, format string, args ...any) *Error {
	return &Error{Code: protocol.ErrTypeMismatch, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func errInvalidState(op, format string, args ...any) *Error {
	return &Error{Code: protocol.ErrInvalidState, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func errNoCapacity(op, format string, args ...any) *Error {
	return &Error{Code: protocol.ErrNoCapacity, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func errObligationUnresolved(op, format string, args ...any) *Error {
	return &Error{Code: protocol.ErrObligationUnresolved, Op: op, Msg: fmt.Sprintf(format, args...)}
}
