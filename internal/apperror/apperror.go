// Package apperror defines the error taxonomy shared by every
// control-plane component and its HTTP status mapping.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for the purpose of HTTP status mapping and
// log severity (spec §7).
type Kind string

const (
	NotFound              Kind = "not_found"
	BadRequest            Kind = "bad_request"
	InvalidConfiguration  Kind = "invalid_configuration"
	AuthenticationFailed  Kind = "authentication_failed"
	LeaseConflict         Kind = "lease_conflict"
	InvalidLeaseNonce     Kind = "invalid_lease_nonce"
	Runtime               Kind = "runtime"
	Database              Kind = "database"
	Network               Kind = "network"
	LiteFS                Kind = "litefs"
	Internal               Kind = "internal"
)

// Error is a typed control-plane error carrying a Kind used for wire
// serialization and HTTP status mapping.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error with a plain message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Is/As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// HTTPStatus maps a Kind to the HTTP status code it produces on the
// wire (spec §7 "HTTP mapping").
func (k Kind) HTTPStatus() int {
	switch k {
	case NotFound:
		return http.StatusNotFound
	case BadRequest, InvalidConfiguration, InvalidLeaseNonce:
		return http.StatusBadRequest
	case AuthenticationFailed:
		return http.StatusUnauthorized
	case LeaseConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// As extracts the Kind of err if it (or something it wraps) is an
// *Error; otherwise returns Internal.
func As(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}
