package remote_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pithecene-io/ferry/remote"
)

func TestStatusError_SentinelMapping(t *testing.T) {
	tests := []struct {
		code     int
		sentinel error
		want     bool
	}{
		{429, remote.ErrThrottled, true},
		{429, remote.ErrSessionRejected, false},
		{404, remote.ErrNotFound, true},
		{400, remote.ErrSessionRejected, true},
		{403, remote.ErrSessionRejected, true},
		{422, remote.ErrSessionRejected, true},
		{500, remote.ErrSessionRejected, false},
		{503, remote.ErrThrottled, false},
	}

	for _, tt := range tests {
		err := &remote.StatusError{Code: tt.code, Op: "test"}
		if got := errors.Is(err, tt.sentinel); got != tt.want {
			t.Errorf("errors.Is(status %d, %v) = %v, want %v", tt.code, tt.sentinel, got, tt.want)
		}
	}
}

func TestStatusError_HTTPStatus(t *testing.T) {
	err := &remote.StatusError{Code: 503, Op: "upload_chunk"}
	if err.HTTPStatus() != 503 {
		t.Errorf("HTTPStatus() = %d, want 503", err.HTTPStatus())
	}
}

type fakeTimeout struct{}

func (fakeTimeout) Error() string { return "dial tcp: i/o timeout" }
func (fakeTimeout) Timeout() bool { return true }

func TestWrapTransport_Classification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"timeout interface", fakeTimeout{}, remote.ErrTimeout},
		{"deadline message", errors.New("context deadline exceeded"), remote.ErrTimeout},
		{"throttle message", errors.New("SlowDown: reduce request rate"), remote.ErrThrottled},
		{"connection refused", errors.New("dial tcp 127.0.0.1:9999: connection refused"), remote.ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := remote.WrapTransport("upload_chunk", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("WrapTransport(%v) does not match %v", tt.err, tt.sentinel)
			}
			// The original error stays reachable through the chain.
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("WrapTransport(%v) lost the underlying error", tt.err)
			}
		})
	}
}

func TestWrapTransport_Nil(t *testing.T) {
	if remote.WrapTransport("op", nil) != nil {
		t.Error("WrapTransport(nil) should return nil")
	}
}

func TestWrapTransport_StatusErrorPassthrough(t *testing.T) {
	orig := &remote.StatusError{Code: 404, Op: "session_status"}
	wrapped := remote.WrapTransport("session_status", fmt.Errorf("query: %w", orig))

	var statusErr *remote.StatusError
	if !errors.As(wrapped, &statusErr) || statusErr.Code != 404 {
		t.Errorf("status error was re-wrapped and lost: %v", wrapped)
	}
}
