package ocr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies a client error for retry and presentation decisions
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION" // bad input, never retried
	KindNetwork    ErrorKind = "NETWORK"    // connectivity failure, retried with backoff
	KindServer     ErrorKind = "SERVER"     // 5xx/429/408 responses, retried with backoff
	KindCancelled  ErrorKind = "CANCELLED"  // caller cancelled, terminal
	KindTimeout    ErrorKind = "TIMEOUT"    // polling bound exceeded, retryable by restarting
	KindUnknown    ErrorKind = "UNKNOWN"    // catch-all, retried once
)

// Error is the error type returned by UploadClient and JobClient.
// CorrelationID ties the failure back to the logical operation that produced it.
type Error struct {
	Kind          ErrorKind
	Code          string
	Message       string
	StatusCode    int
	CorrelationID string
	Retryable     bool
	cause         error
}

// Error returns the string representation of the error
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// NewValidationError creates a non-retryable validation error
func NewValidationError(code, message string) *Error {
	return &Error{
		Kind:      KindValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewCancelledError creates a terminal cancellation error
func NewCancelledError(message string) *Error {
	return &Error{
		Kind:      KindCancelled,
		Code:      "CANCELLED",
		Message:   message,
		Retryable: false,
	}
}

// NewTimeoutError creates a retryable soft-timeout error (polling bound exceeded)
func NewTimeoutError(message string) *Error {
	return &Error{
		Kind:      KindTimeout,
		Code:      "TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// newStatusError maps an HTTP response status plus server error body to an Error
func newStatusError(status int, code, message, correlationID string) *Error {
	kind := KindServer
	if status >= 400 && status < 500 && !retryableStatus(status) {
		kind = KindValidation
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{
		Kind:          kind,
		Code:          code,
		Message:       message,
		StatusCode:    status,
		CorrelationID: correlationID,
		Retryable:     retryableStatus(status),
	}
}

// wrapTransportError maps a transport-level failure (connection reset, DNS,
// context cancellation) to an Error
func wrapTransportError(err error, correlationID string) *Error {
	if errors.Is(err, context.Canceled) {
		return &Error{
			Kind:          KindCancelled,
			Code:          "CANCELLED",
			Message:       "request cancelled",
			CorrelationID: correlationID,
			Retryable:     false,
			cause:         err,
		}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{
			Kind:          KindNetwork,
			Code:          "REQUEST_TIMEOUT",
			Message:       "request timed out",
			CorrelationID: correlationID,
			Retryable:     true,
			cause:         err,
		}
	}

	return &Error{
		Kind:          KindNetwork,
		Code:          "NETWORK_ERROR",
		Message:       err.Error(),
		CorrelationID: correlationID,
		Retryable:     true,
		cause:         err,
	}
}

// retryableStatus reports whether an HTTP status warrants a retry with backoff
func retryableStatus(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout
}

// IsRetryable reports whether err can be retried under the shared policy
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	// Unknown errors get one retry under the default policy
	return err != nil
}

// IsCancelled reports whether err is a cancellation
func IsCancelled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindCancelled
}
