// Package apperr defines the failure kinds surfaced at the service boundary.
package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	Unauthenticated
	InvalidRequest
	Configuration
	Upstream
	NotFound
	MalformedPayload
)

func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case InvalidRequest:
		return "invalid request"
	case Configuration:
		return "configuration error"
	case Upstream:
		return "upstream error"
	case NotFound:
		return "not found"
	case MalformedPayload:
		return "malformed payload"
	default:
		return "internal error"
	}
}

// HTTPStatus maps a kind to the status code written at the HTTP boundary.
func (k Kind) HTTPStatus() int {
	switch k {
	case Unauthenticated:
		return http.StatusUnauthorized
	case InvalidRequest:
		return http.StatusBadRequest
	case Upstream:
		return http.StatusBadGateway
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a Kind and a message safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind to err. An empty message falls back to err's own text,
// which keeps provider messages intact for upstream failures.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}
