package remote

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for transport failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")

	// ErrNotFound indicates the resource or session does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrSessionRejected indicates the server refused the session outright
	// (invalid session, auth rejected, malformed negotiation).
	ErrSessionRejected = errors.New("session rejected")

	// ErrChecksumMismatch indicates the server rejected the final manifest
	// because the assembled object failed validation.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// StatusError is returned for non-2xx HTTP responses. Carrying the code
// lets the retry policy distinguish transient (5xx, 429) from fatal (4xx)
// failures without string matching.
type StatusError struct {
	Code int
	Op   string
}

func (e *StatusError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("unexpected status %d", e.Code)
}

// HTTPStatus implements retry.StatusCoder.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Is maps status codes onto the package sentinels so callers can use
// errors.Is without inspecting codes directly.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrThrottled:
		return e.Code == 429
	case ErrNotFound:
		return e.Code == 404
	case ErrSessionRejected:
		return e.Code >= 400 && e.Code < 500 && e.Code != 429 && e.Code != 404
	default:
		return false
	}
}

// TransportError wraps an underlying transport failure with its
// classification. It preserves the original error in the chain for
// inspection via errors.As.
type TransportError struct {
	// Kind is the sentinel for classification (e.g. ErrNetwork).
	Kind error
	// Op is the endpoint operation that failed (e.g. "upload_chunk").
	Op string
	// Err is the underlying error.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *TransportError) Unwrap() error { return e.Err }

// Is reports whether the error matches the target sentinel.
func (e *TransportError) Is(target error) bool { return errors.Is(e.Kind, target) }

// WrapTransport classifies and wraps a transport-level error.
// Returns nil if err is nil. Status errors pass through unwrapped since
// they already carry their classification.
func WrapTransport(op string, err error) error {
	if err == nil {
		return nil
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return err
	}
	return &TransportError{Kind: classify(err), Op: op, Err: err}
}

// classify picks the sentinel for a non-status transport error.
func classify(err error) error {
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded"):
		return ErrTimeout
	case strings.Contains(msg, "throttl") || strings.Contains(msg, "slowdown") ||
		strings.Contains(msg, "too many requests"):
		return ErrThrottled
	default:
		return ErrNetwork
	}
}
