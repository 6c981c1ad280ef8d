package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrDisconnected fails a request that waited in the disconnect queue
	// for longer than 1.5 × RedialInterval.
	ErrDisconnected = errors.New("currently disconnected")

	// ErrConnectionLost fails a request that was on the wire when the
	// connection dropped.
	ErrConnectionLost = errors.New("connection lost")

	// ErrClosed fails requests once the multiplexer has shut down.
	ErrClosed = errors.New("multiplexer closed")

	// ErrCanceled is returned by Recv after the caller closed the stream.
	ErrCanceled = errors.New("request canceled")
)

// RequestError is the terminal failure of one logical request.
//
// Store-side failures carry the wire Kind; local failures (queue expiry,
// connection loss, shutdown) wrap one of the sentinel errors above.
type RequestError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RequestID is the correlation id of the failed attempt, zero if the
	// request never reached the wire.
	RequestID RequestID

	// ServiceID is the endpoint the request addressed.
	ServiceID string

	// Kind is the store's error kind, nil for local failures.
	Kind ErrorKind

	cause error
}

// ErrorCode categorizes request errors.
type ErrorCode string

const (
	// ErrCodeUnknownEndpoint indicates the store does not serve the service id.
	ErrCodeUnknownEndpoint ErrorCode = "UNKNOWN_ENDPOINT"

	// ErrCodeInternal indicates a failure inside the store.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

	// ErrCodeBadRequest indicates the store rejected the payload.
	ErrCodeBadRequest ErrorCode = "BAD_REQUEST"

	// ErrCodeService indicates a service-specific error value.
	ErrCodeService ErrorCode = "SERVICE_ERROR"

	// ErrCodeDisconnected indicates the request expired in the disconnect queue.
	ErrCodeDisconnected ErrorCode = "DISCONNECTED"

	// ErrCodeConnectionLost indicates the connection dropped mid-request.
	ErrCodeConnectionLost ErrorCode = "CONNECTION_LOST"

	// ErrCodeClosed indicates the multiplexer shut down.
	ErrCodeClosed ErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e.RequestID != 0 {
		return fmt.Sprintf("%s: %s (service=%s, request=%d)", e.Code, e.Message, e.ServiceID, e.RequestID)
	}
	return fmt.Sprintf("%s: %s (service=%s)", e.Code, e.Message, e.ServiceID)
}

// Unwrap exposes the sentinel behind local failures.
func (e *RequestError) Unwrap() error {
	return e.cause
}

// IsOverload reports whether err is the store's "overloaded" service error.
// Uses errors.As to handle wrapped errors.
func IsOverload(err error) bool {
	var re *RequestError
	if !errors.As(err, &re) {
		return false
	}
	se, ok := re.Kind.(ServiceError)
	return ok && se.Overloaded()
}

// IsDisconnected reports whether err stems from the connection being down,
// either while queued or while in flight.
func IsDisconnected(err error) bool {
	return errors.Is(err, ErrDisconnected) || errors.Is(err, ErrConnectionLost)
}

// newKindError converts a wire error into a RequestError.
func newKindError(serviceID string, id RequestID, kind ErrorKind) *RequestError {
	code := ErrCodeService
	switch kind.(type) {
	case UnknownEndpoint:
		code = ErrCodeUnknownEndpoint
	case InternalError:
		code = ErrCodeInternal
	case BadRequest:
		code = ErrCodeBadRequest
	}
	return &RequestError{Code: code, Message: kind.String(), RequestID: id, ServiceID: serviceID, Kind: kind}
}

// newLocalError wraps a sentinel for a failure detected on the client side.
func newLocalError(code ErrorCode, serviceID string, id RequestID, cause error) *RequestError {
	return &RequestError{Code: code, Message: cause.Error(), RequestID: id, ServiceID: serviceID, cause: cause}
}
