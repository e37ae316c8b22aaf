package core

import "github.com/pkg/errors"

// ErrorKind classifies application errors so transports can map them
// to a wire representation without knowing the domain that raised them.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindConflict        ErrorKind = "conflict"
	KindInternal        ErrorKind = "internal"
)

// Error is an application error carrying a machine-readable Kind and a
// human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error // optional underlying cause
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func NewNotFoundError(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NewInvalidArgumentError(msg string) error {
	return &Error{Kind: KindInvalidArgument, Message: msg}
}

func NewConflictError(msg string) error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NewInternalError(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// ErrorIsKind reports whether err (or its cause) is an *Error of the given kind.
func ErrorIsKind(err error, kind ErrorKind) bool {
	if appErr, ok := errors.Cause(err).(*Error); ok {
		return appErr.Kind == kind
	}
	return false
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
