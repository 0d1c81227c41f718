package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// Sentinels matched by *BackendError through errors.Is.
var (
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrBackendTimeout     = errors.New("backend timeout")
	ErrBackendError       = errors.New("backend error")
)

// ErrorKind classifies a backend failure.
type ErrorKind int

const (
	// KindFailure is any non-success status or protocol failure.
	KindFailure ErrorKind = iota
	// KindUnavailable means the transport could not reach the backend.
	KindUnavailable
	// KindTimeout means the call exceeded its timeout.
	KindTimeout
)

// String returns a human-readable representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// BackendError is the typed failure returned by every Gateway.
type BackendError struct {
	Kind       ErrorKind
	Backend    string
	StatusCode int
	Message    string
	Err        error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s (status %d): %s", e.Backend, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Backend, e.Kind, msg)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind.
func (e *BackendError) Is(target error) bool {
	switch target {
	case ErrBackendUnavailable:
		return e.Kind == KindUnavailable
	case ErrBackendTimeout:
		return e.Kind == KindTimeout
	case ErrBackendError:
		return e.Kind == KindFailure
	}
	return false
}

// statusError builds a KindFailure error for a non-success response.
func statusError(backend string, status int, body string) *BackendError {
	return &BackendError{Kind: KindFailure, Backend: backend, StatusCode: status, Message: body}
}

// classify converts a transport error into a *BackendError. parent is the
// caller's context: if it was cancelled the plain context error is returned
// so user interrupts are not reported as backend faults.
func classify(parent context.Context, backend string, err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be
	}
	if parent.Err() == context.Canceled {
		return context.Canceled
	}

	kind := KindFailure
	var netErr net.Error
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		kind = KindUnavailable
	case errors.As(err, &dnsErr):
		kind = KindUnavailable
	case errors.As(err, &opErr) && opErr.Op == "dial":
		kind = KindUnavailable
	}

	var urlErr *url.Error
	msg := err.Error()
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		msg = urlErr.Err.Error()
	}
	return &BackendError{Kind: kind, Backend: backend, Message: msg, Err: err}
}
