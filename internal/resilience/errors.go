// Package resilience models retry as an explicit loop with a typed
// retryable-vs-terminal outcome, plus per-service circuit breakers.
package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// RetryableError marks an error safe to retry: timeouts, resets, 5xx.
type RetryableError struct {
	Err        error
	StatusCode int
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as retryable, optionally tagging the HTTP status.
func Retryable(err error, statusCode int) *RetryableError {
	return &RetryableError{Err: err, StatusCode: statusCode}
}

// TerminalError marks an error that must fail fast: malformed URLs,
// non-429 4xx responses, robots denials.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }
func (e *TerminalError) Unwrap() error { return e.Err }

// Terminal wraps err as non-retryable.
func Terminal(err error) *TerminalError {
	return &TerminalError{Err: err}
}

// IsRetryable classifies an error. An explicit TerminalError wins over every
// heuristic; explicit RetryableError and network-level transience retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var term *TerminalError
	if errors.As(err, &term) {
		return false
	}

	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// Wrapped transport errors lose their type; fall back to message patterns.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// RetryableStatus reports whether an HTTP status is worth retrying. 429
// retries here, but callers also report it to the governor as a soft block.
func RetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
