package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Code classifies a provider failure independently of any backend's native
// error shape.
type Code string

const (
	CodeInvalidRequest  Code = "INVALID_REQUEST"
	CodeInvalidAPIKey   Code = "INVALID_API_KEY"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeServerError     Code = "SERVER_ERROR"
	CodeConnectionError Code = "CONNECTION_ERROR"
	CodeUnknown         Code = "UNKNOWN_ERROR"
)

// Error is the transport-neutral provider error. Callers decide retry
// purely from Retryable; they never re-inspect backend-specific codes.
type Error struct {
	Code      Code
	Retryable bool
	Message   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %s (retryable=%t): %s", e.Code, e.Retryable, e.Message)
}

// FromStatus maps an HTTP status to the normalized error. The mapping is
// binding across all backends.
func FromStatus(status int, message string) *Error {
	switch status {
	case http.StatusBadRequest:
		return &Error{Code: CodeInvalidRequest, Message: message}
	case http.StatusUnauthorized:
		return &Error{Code: CodeInvalidAPIKey, Message: message}
	case http.StatusForbidden:
		return &Error{Code: CodeForbidden, Message: message}
	case http.StatusNotFound:
		return &Error{Code: CodeNotFound, Message: message}
	case http.StatusTooManyRequests:
		return &Error{Code: CodeRateLimited, Retryable: true, Message: message}
	case http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return &Error{Code: CodeServerError, Retryable: true, Message: message}
	default:
		return &Error{Code: CodeUnknown, Message: message}
	}
}

// FromTransport normalizes network-level failures. Connection resets and
// timeouts are retryable; a canceled context is surfaced unchanged so
// callers can distinguish their own cancellation.
func FromTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var alreadyNormalized *Error
	if errors.As(err, &alreadyNormalized) {
		return alreadyNormalized
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Code: CodeConnectionError, Retryable: true, Message: err.Error()}
	}
	return &Error{Code: CodeUnknown, Message: err.Error()}
}

// StreamInterrupted normalizes a stream that ended before the backend sent
// its terminating frame. Classified as a connection failure: the text
// yielded so far is truncated and must not be treated as a completion.
func StreamInterrupted(cause error) *Error {
	msg := "stream ended before completion"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &Error{Code: CodeConnectionError, Retryable: true, Message: msg}
}

// IsRetryable reports whether err carries the retryable flag.
func IsRetryable(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Retryable
}
