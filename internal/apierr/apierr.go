// Package apierr marks errors whose message is safe to show to API clients.
//
// Resolver errors are internal by default; the server replaces their message
// before it leaves the process. Errors created here, or wrapping one created
// here, keep their message and extensions.
package apierr

import (
	"errors"
	"maps"
)

// MaskedMessage replaces the message of errors that are not exposed.
const MaskedMessage = "Internal Server Error"

// Error is a client-facing error.
type Error struct {
	Message    string
	extensions map[string]any
}

func (e *Error) Error() string { return e.Message }

// Extensions returns a copy of the response extensions attached to the error.
func (e *Error) Extensions() map[string]any {
	if len(e.extensions) == 0 {
		return nil
	}
	return maps.Clone(e.extensions)
}

// New returns a client-facing error with the given message.
func New(message string) *Error { return &Error{Message: message} }

// Extended returns a client-facing error carrying response extensions, for
// example {"code": "FORBIDDEN"}.
func Extended(message string, extensions map[string]any) *Error {
	return &Error{Message: message, extensions: maps.Clone(extensions)}
}

// IsExposed reports whether err, or any error it wraps, is client-facing.
func IsExposed(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Message returns the text a client may see for err: its own message when
// exposed, MaskedMessage otherwise.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if IsExposed(err) {
		return err.Error()
	}
	return MaskedMessage
}
