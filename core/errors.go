package core

import "github.com/pkg/errors"

// ErrKind classifies domain errors so the HTTP layer can map them to status codes.
type ErrKind uint8

const (
	KindInternal ErrKind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

// Error is a domain error of a known kind. Its message is safe to show to clients.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (err *Error) Error() string { return err.Msg }

func NewError(kind ErrKind, msg string) error { return &Error{Kind: kind, Msg: msg} }

func NewBadRequestError(msg string) error   { return NewError(KindBadRequest, msg) }
func NewUnauthorizedError(msg string) error { return NewError(KindUnauthorized, msg) }
func NewForbiddenError(msg string) error    { return NewError(KindForbidden, msg) }
func NewNotFoundError(msg string) error     { return NewError(KindNotFound, msg) }
func NewConflictError(msg string) error     { return NewError(KindConflict, msg) }

// KindOf returns the kind of the first *Error in err's chain, KindInternal otherwise.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
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
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
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
