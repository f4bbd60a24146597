package session

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired is returned to every request still waiting on a refresh
	// when the session has been terminated. The caller must log in again.
	ErrAuthRequired = errors.New("authentication required")

	// ErrNoRefreshCredential means the store held no refresh credential when
	// an expired access credential was detected.
	ErrNoRefreshCredential = errors.New("no refresh credential stored")

	// ErrRefreshRejected means the refresh endpoint refused the refresh
	// credential (expired, revoked or malformed).
	ErrRefreshRejected = errors.New("refresh credential rejected")
)

// TransportError wraps a failure to get any response from the server:
// unreachable host, TLS failure, timeout, cancelled context. It never
// triggers a refresh.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RetryExhaustedError is returned when a request that was already replayed
// once with a fresh credential is rejected as unauthenticated again.
type RetryExhaustedError struct {
	RequestID  string
	Method     string
	URL        string
	StatusCode int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf(
		"%s %s: still unauthorized (status %d) after credential refresh",
		e.Method,
		e.URL,
		e.StatusCode,
	)
}

// terminated builds the error handed to waiters when the session ends.
func terminated(cause error) error {
	if errors.Is(cause, ErrAuthRequired) {
		return cause
	}
	return fmt.Errorf("%w: %w", ErrAuthRequired, cause)
}
