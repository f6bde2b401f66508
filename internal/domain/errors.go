package domain

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// User-facing messages for event list failures. The host redirects to the
// sign-in screen on the unauthenticated case, so it must stay distinct from
// the rest.
const (
	MsgUnauthenticated = "Your session has expired. Please sign in again."
	MsgForbidden       = "You don't have access to this calendar."
	MsgNotFound        = "The calendar service endpoint was not found."
	MsgServerFault     = "The calendar service had an internal error. Please try again later."
	MsgServerOther     = "The calendar service returned an unexpected error."
	MsgTimeout         = "The request timed out. Check your connection and try again."
	MsgHostUnreachable = "Could not reach the calendar service. Check your connection."
	MsgTransportOther  = "A network error occurred. Please try again."
)

// ValidationError is a local precondition failure; it never reaches the
// network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %s", e.Field, e.Reason)
}

// TransportKind classifies I/O-level failures.
type TransportKind int

const (
	TransportOther TransportKind = iota
	TransportTimeout
	TransportDNS
)

// TransportError is an I/O failure before any HTTP status was received.
// Retryable from the user's point of view.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Message returns the user-facing text for this failure.
func (e *TransportError) Message() string {
	switch e.Kind {
	case TransportTimeout:
		return MsgTimeout
	case TransportDNS:
		return MsgHostUnreachable
	default:
		return MsgTransportOther
	}
}

// ServerError is a non-2xx HTTP response from the event store.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server returned status %d", e.StatusCode)
}

// Message maps the status code to one of the fixed user-facing categories.
func (e *ServerError) Message() string {
	switch e.StatusCode {
	case 401:
		return MsgUnauthenticated
	case 403:
		return MsgForbidden
	case 404:
		return MsgNotFound
	case 500:
		return MsgServerFault
	default:
		return MsgServerOther
	}
}

// ClassifyTransport wraps an I/O error with its transport kind.
func ClassifyTransport(err error) *TransportError {
	kind := TransportOther

	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		kind = TransportDNS
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = TransportTimeout
	case errors.Is(err, os.ErrDeadlineExceeded):
		kind = TransportTimeout
	}

	return &TransportError{Kind: kind, Err: err}
}

// ErrorMessage converts any repository error into its user-facing text.
func ErrorMessage(err error) string {
	var vErr *ValidationError
	var tErr *TransportError
	var sErr *ServerError
	switch {
	case errors.As(err, &vErr):
		return vErr.Error()
	case errors.As(err, &tErr):
		return tErr.Message()
	case errors.As(err, &sErr):
		return sErr.Message()
	default:
		return MsgTransportOther
	}
}

// IsUnauthenticated reports whether err means the session is no longer valid.
func IsUnauthenticated(err error) bool {
	var sErr *ServerError
	return errors.As(err, &sErr) && sErr.StatusCode == 401
}
