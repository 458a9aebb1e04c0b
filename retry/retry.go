// Package retry classifies transport errors and computes backoff delays
// for chunk retries.
//
// Classification rules:
//   - Retryable: network/connection errors, request timeouts, HTTP 5xx, HTTP 429.
//   - Fatal: any other HTTP 4xx. The server rejected a well-formed request,
//     so retrying the same bytes cannot succeed.
//   - Context cancellation is neither: callers must treat it as pause/cancel
//     before consulting the policy.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"time"
)

// Defaults for the chunk retry policy.
const (
	// DefaultMaxRetries is the retry budget per chunk (4 total tries).
	DefaultMaxRetries = 3
	// DefaultBase is the backoff base delay.
	DefaultBase = 1000 * time.Millisecond
	// DefaultCap is the backoff ceiling.
	DefaultCap = 10 * time.Second
	// DefaultMultiplier is the exponential growth factor.
	DefaultMultiplier = 1.5
	// DefaultJitter is the maximum random jitter added to each delay.
	DefaultJitter = 500 * time.Millisecond
)

// StatusCoder is implemented by transport errors that carry an HTTP
// status code. The remote package's StatusError satisfies it.
type StatusCoder interface {
	HTTPStatus() int
}

// Policy decides whether a failed chunk attempt is retried and how long
// to wait before the next try. The zero value is not usable; construct
// with NewPolicy.
type Policy struct {
	MaxRetries int
	Base       time.Duration
	Cap        time.Duration
	Multiplier float64

	// jitter returns a random duration in [0, DefaultJitter). Swappable
	// for deterministic tests.
	jitter func() time.Duration
}

// NewPolicy returns a Policy with the default tuning.
func NewPolicy() *Policy {
	return &Policy{
		MaxRetries: DefaultMaxRetries,
		Base:       DefaultBase,
		Cap:        DefaultCap,
		Multiplier: DefaultMultiplier,
		jitter:     func() time.Duration { return rand.N(DefaultJitter) },
	}
}

// WithJitter returns a copy of the policy using the given jitter source.
func (p *Policy) WithJitter(jitter func() time.Duration) *Policy {
	cp := *p
	cp.jitter = jitter
	return &cp
}

// ShouldRetry reports whether err is transient. It does not consult the
// attempt count; callers enforce MaxRetries.
func (p *Policy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is a user outcome, not a transport failure.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// HTTP status classification: 429 and 5xx are transient, the rest of
	// 4xx is a rejection of a well-formed request.
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		switch {
		case code == 429:
			return true
		case code >= 500:
			return true
		case code >= 400:
			return false
		}
	}

	// Timeouts and network-level failures are transient.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unclassified transport errors (connection reset, EOF mid-body, DNS)
	// are treated as transient; the attempt cap bounds the damage.
	return true
}

// Backoff returns the delay before retry attempt n (1-based):
// min(Base * Multiplier^(n-1) + jitter, Cap).
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.Base)
	for i := 1; i < attempt; i++ {
		delay *= p.Multiplier
		if time.Duration(delay) >= p.Cap {
			break
		}
	}

	d := time.Duration(delay)
	if p.jitter != nil {
		d += p.jitter()
	}
	if d > p.Cap {
		d = p.Cap
	}
	return d
}

// Sleep blocks for the backoff delay of the given attempt, returning
// early with ctx.Err() if the context is cancelled. Cancellation during
// backoff means pause/cancel, not failure.
func (p *Policy) Sleep(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.Backoff(attempt)):
		return nil
	}
}
