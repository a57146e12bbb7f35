package checkout

import (
	"errors"
	"net/http"
)

// Kind classifies checkout failures.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInsufficientStock
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "Validation"
	case KindNotFound:
		return "NotFound"
	case KindInsufficientStock:
		return "InsufficientStock"
	case KindAuth:
		return "Auth"
	}
	return "Internal"
}

// HTTPStatus is the response status for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindInsufficientStock:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// Error is the single failure outcome of a checkout. Message is safe to show
// to the client; Err carries the cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the Kind of err; untyped errors are internal.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// PublicMessage is the client-facing message for err.
func PublicMessage(err error) string {
	var ce *Error
	if errors.As(err, &ce) && ce.Kind != KindInternal {
		return ce.Message
	}
	return "Internal server error"
}
