// Package apperr defines the error taxonomy shared by every layer of the
// ingestion pipeline, along with the HTTP status mapping and retry
// classification the rest of the core relies on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the taxonomy entries from the ingestion spec.
type Kind string

const (
	InvalidInput        Kind = "InvalidInput"
	NotFound             Kind = "NotFound"
	AuthRequired          Kind = "AuthRequired"
	RateLimited           Kind = "RateLimited"
	UpstreamUnavailable   Kind = "UpstreamUnavailable"
	TransientDatabase     Kind = "TransientDatabase"
	FatalDatabase         Kind = "FatalDatabase"
	JobTimeout            Kind = "JobTimeout"
	Cancelled             Kind = "Cancelled"
)

// Error is the typed envelope every layer returns instead of a bare error.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithHint attaches a client-facing retry hint (e.g. "retry after 5s").
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// As extracts an *Error from err, returning (nil, false) when err does
// not wrap one.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf returns the Kind of err, or FatalDatabase if err isn't a typed
// Error — an unrecognized error is treated as non-retriable by default.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return FatalDatabase
}

// Retriable reports whether an error of this Kind should be retried by
// the local exponential-backoff helpers (§7: RateLimited,
// UpstreamUnavailable, TransientDatabase are retriable; everything else
// is surfaced immediately).
func (k Kind) Retriable() bool {
	switch k {
	case RateLimited, UpstreamUnavailable, TransientDatabase:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the status code the ingestion HTTP boundary
// should respond with.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidInput:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case AuthRequired:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case UpstreamUnavailable:
		return http.StatusBadGateway
	case TransientDatabase, FatalDatabase:
		return http.StatusInternalServerError
	case JobTimeout:
		return http.StatusGatewayTimeout
	case Cancelled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Envelope is the user-facing JSON body for every error response,
// per spec.md §7: {success:false, error:{kind,message,hint?}, timestamp}.
type Envelope struct {
	Success   bool        `json:"success"`
	Error     EnvelopeErr `json:"error"`
	Timestamp string      `json:"timestamp"`
}

// EnvelopeErr is the nested error object of Envelope.
type EnvelopeErr struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}
