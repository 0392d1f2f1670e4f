package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a failure for the request boundary.
type Kind string

const (
	InputInvalid        Kind = "input_invalid"
	RecordNotFound      Kind = "record_not_found"
	RecordAbsent        Kind = "record_absent"
	UpstreamTimeout     Kind = "upstream_timeout"
	UpstreamUnavailable Kind = "upstream_unavailable"
	ParseError          Kind = "parse_error"
	Internal            Kind = "internal"
)

// Error carries a Kind alongside the user-facing message.
type Error struct {
	Kind    Kind
	Msg     string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so errors.Is(err, apperr.New(apperr.InputInvalid, ""))
// works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Invalid(format string, args ...any) *Error {
	return &Error{Kind: InputInvalid, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the Kind of err. Context deadlines and network timeouts are
// classified as UpstreamTimeout even when they were never wrapped.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return UpstreamTimeout
		}
		return UpstreamUnavailable
	}
	return Internal
}

// Status maps a Kind to the HTTP status used when the error aborts a request.
func Status(kind Kind) int {
	switch kind {
	case InputInvalid, ParseError:
		return http.StatusBadRequest
	case RecordNotFound, RecordAbsent:
		return http.StatusNotFound
	case UpstreamTimeout:
		return http.StatusGatewayTimeout
	case UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
