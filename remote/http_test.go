package remote_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/ferry/remote"
)

func TestHTTPEndpoint_RequiresBaseURL(t *testing.T) {
	if _, err := remote.NewHTTPEndpoint(remote.HTTPConfig{}); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestHTTPEndpoint_InitiateUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/uploads" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["name"] != "report.pdf" || body["size"] != float64(1<<20) {
			t.Errorf("unexpected body: %v", body)
		}
		_ = json.NewEncoder(w).Encode(remote.UploadInit{
			SessionID: "sess-1", ChunkSize: 256 << 10, TotalChunks: 4,
		})
	}))
	defer srv.Close()

	ep, err := remote.NewHTTPEndpoint(remote.HTTPConfig{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewHTTPEndpoint: %v", err)
	}

	init, err := ep.InitiateUpload(t.Context(), "report.pdf", "folder-7", 1<<20)
	if err != nil {
		t.Fatalf("InitiateUpload: %v", err)
	}
	if init.SessionID != "sess-1" || init.ChunkSize != 256<<10 || init.TotalChunks != 4 {
		t.Errorf("unexpected init: %+v", init)
	}
}

func TestHTTPEndpoint_UploadChunk_SendsRawBody(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ep, _ := remote.NewHTTPEndpoint(remote.HTTPConfig{BaseURL: srv.URL})
	if err := ep.UploadChunk(t.Context(), "sess-1", 3, []byte("chunk-bytes")); err != nil {
		t.Fatalf("UploadChunk: %v", err)
	}
	if gotPath != "/api/v1/sessions/sess-1/chunks/3" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if string(gotBody) != "chunk-bytes" {
		t.Errorf("unexpected body %q", gotBody)
	}
}

func TestHTTPEndpoint_UploadChunk_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ep, _ := remote.NewHTTPEndpoint(remote.HTTPConfig{BaseURL: srv.URL})
	err := ep.UploadChunk(t.Context(), "sess-1", 0, []byte("x"))

	var statusErr *remote.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != 503 {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
}

func TestHTTPEndpoint_DownloadChunk_RangeHeader(t *testing.T) {
	payload := []byte("0123456789")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Range"); got != "bytes=2-5" {
			t.Errorf("unexpected Range header %q", got)
		}
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(payload[2:6])
	}))
	defer srv.Close()

	ep, _ := remote.NewHTTPEndpoint(remote.HTTPConfig{BaseURL: srv.URL})
	data, err := ep.DownloadChunk(t.Context(), "sess-1", 0, 2, 6)
	if err != nil {
		t.Fatalf("DownloadChunk: %v", err)
	}
	if string(data) != "2345" {
		t.Errorf("unexpected data %q", data)
	}
}

func TestHTTPEndpoint_DownloadChunk_ShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ab")) // 2 bytes where 4 were requested
	}))
	defer srv.Close()

	ep, _ := remote.NewHTTPEndpoint(remote.HTTPConfig{BaseURL: srv.URL})
	if _, err := ep.DownloadChunk(t.Context(), "sess-1", 0, 0, 4); err == nil {
		t.Fatal("expected short body error")
	}
}

func TestHTTPEndpoint_ResumeSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/resume") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(remote.ResumeInfo{MissingChunks: []int{5, 6, 7}})
	}))
	defer srv.Close()

	ep, _ := remote.NewHTTPEndpoint(remote.HTTPConfig{BaseURL: srv.URL})
	info, err := ep.ResumeSession(t.Context(), "sess-1")
	if err != nil {
		t.Fatalf("ResumeSession: %v", err)
	}
	if len(info.MissingChunks) != 3 || info.MissingChunks[0] != 5 {
		t.Errorf("unexpected missing chunks %v", info.MissingChunks)
	}
}

func TestHTTPEndpoint_CancelAbortsInFlight(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done() // hold until the client aborts
	}))
	defer srv.Close()

	ep, _ := remote.NewHTTPEndpoint(remote.HTTPConfig{BaseURL: srv.URL})
	ctx, cancel := context.WithCancel(t.Context())

	errCh := make(chan error, 1)
	go func() {
		errCh <- ep.UploadChunk(ctx, "sess-1", 0, []byte("held"))
	}()

	<-started
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled in chain, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("request was not aborted by cancellation")
	}
}

func TestHTTPEndpoint_CustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("missing auth header, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(remote.SessionStatus{})
	}))
	defer srv.Close()

	ep, _ := remote.NewHTTPEndpoint(remote.HTTPConfig{
		BaseURL: srv.URL,
		Headers: map[string]string{"Authorization": "Bearer tok"},
	})
	if _, err := ep.SessionStatus(t.Context(), "sess-1"); err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
}
