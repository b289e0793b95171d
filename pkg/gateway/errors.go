package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for the request pipeline and the dispatcher.
var (
	// ErrServerClosed is returned by Serve after Close or context cancellation.
	ErrServerClosed = errors.New("gateway: server closed")

	// ErrEmptyRequest is returned when a connection sends zero bytes.
	ErrEmptyRequest = errors.New("gateway: empty request")

	// ErrMalformedRequestLine is returned when the request line has fewer than three tokens.
	ErrMalformedRequestLine = errors.New("gateway: malformed request line")

	// ErrInvalidEncoding is returned when request or body bytes are not valid UTF-8.
	ErrInvalidEncoding = errors.New("gateway: invalid utf-8")

	// ErrResponseNotStarted is returned when encoding a response whose
	// application never called StartResponse.
	ErrResponseNotStarted = errors.New("gateway: response not started")

	// ErrNoApplication is returned by Serve when no application is set.
	ErrNoApplication = errors.New("gateway: no application")
)

// ConnError wraps a transport error with the operation that failed.
type ConnError struct {
	Op         string // accept, read or write
	RemoteAddr string
	Err        error
}

// Error returns the error message with connection context.
func (e *ConnError) Error() string {
	if e.RemoteAddr == "" {
		return fmt.Sprintf("gateway: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway: %s %s: %v", e.Op, e.RemoteAddr, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *ConnError) Unwrap() error {
	return e.Err
}

// MalformedRequestError reports the request line that could not be split
// into method, target and version.
type MalformedRequestError struct {
	Line string
}

func (e *MalformedRequestError) Error() string {
	return fmt.Sprintf("gateway: malformed request line %q", e.Line)
}

func (e *MalformedRequestError) Unwrap() error {
	return ErrMalformedRequestLine
}

// ApplicationPanicError wraps a panic recovered from an application.
type ApplicationPanicError struct {
	Value any
	Stack []byte
}

func (e *ApplicationPanicError) Error() string {
	return fmt.Sprintf("gateway: application panic: %v", e.Value)
}
