// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the reactor, the connection state machine and
// the worker pool.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the server.
var (
	ErrClosed            = errors.New("closed")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrResourceExhausted = errors.New("resource exhausted")
	ErrPeerClosed        = errors.New("peer closed connection")
	ErrBufferFull        = errors.New("read buffer full")
)

// Kind classifies a failure by how the server reacts to it.
type Kind int

const (
	KindNone Kind = iota
	// KindProtocol is a malformed request; answered with 400.
	KindProtocol
	// KindResource is a missing, unreadable or unsuitable file.
	KindResource
	// KindTransport is a socket failure or peer close; no response is sent.
	KindTransport
	// KindCapacity is backpressure from a bounded queue or pool.
	KindCapacity
	// KindInfrastructure is a startup failure of a required resource.
	KindInfrastructure
	// KindTimeout is an idle eviction by the timer sweep.
	KindTimeout
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	case KindTransport:
		return "transport"
	case KindCapacity:
		return "capacity"
	case KindInfrastructure:
		return "infrastructure"
	case KindTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Error represents a classified error with context.
type Error struct {
	Kind    Kind
	Op      string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.Err }

// NewError creates a classified error for op wrapping err.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// KindOf reports the Kind of err, or KindNone when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}
