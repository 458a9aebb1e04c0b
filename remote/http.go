package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/pithecene-io/ferry/iox"
)

// HTTPConfig configures the HTTP endpoint client.
type HTTPConfig struct {
	// BaseURL is the transfer API root, e.g. "https://drive.example.com" (required).
	BaseURL string
	// Headers are added to every request (e.g. Authorization).
	Headers map[string]string
	// Client overrides the HTTP client. Defaults to http.DefaultClient.
	// No client-level timeout is set: chunk requests are bounded by the
	// caller's context, and a fixed timeout would break large chunks on
	// slow links.
	Client *http.Client
}

// HTTPEndpoint talks to the ferry transfer API over HTTP.
//
// Chunk payloads travel as raw bytes; everything else is JSON. Requests
// are built with the caller's context so firing the transfer's abort
// signal cancels them mid-flight.
type HTTPEndpoint struct {
	config HTTPConfig
	client *http.Client
}

// NewHTTPEndpoint creates an HTTP endpoint client.
func NewHTTPEndpoint(cfg HTTPConfig) (*HTTPEndpoint, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("http endpoint requires a base URL")
	}
	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPEndpoint{config: cfg, client: client}, nil
}

// InitiateUpload implements Endpoint.
func (e *HTTPEndpoint) InitiateUpload(ctx context.Context, name, parentID string, size int64) (*UploadInit, error) {
	body := map[string]any{"name": name, "parent_id": parentID, "size": size}
	var init UploadInit
	if err := e.postJSON(ctx, "initiate_upload", e.url("/api/v1/uploads"), body, &init); err != nil {
		return nil, err
	}
	return &init, nil
}

// InitiateDownload implements Endpoint.
func (e *HTTPEndpoint) InitiateDownload(ctx context.Context, resourceID string) (*DownloadInit, error) {
	body := map[string]any{"resource_id": resourceID}
	var init DownloadInit
	if err := e.postJSON(ctx, "initiate_download", e.url("/api/v1/downloads"), body, &init); err != nil {
		return nil, err
	}
	return &init, nil
}

// UploadChunk implements Endpoint. The chunk travels as the raw request
// body; index is carried in the path so the server can ack idempotently.
func (e *HTTPEndpoint) UploadChunk(ctx context.Context, sessionID string, index int, data []byte) error {
	url := e.url("/api/v1/sessions/" + sessionID + "/chunks/" + strconv.Itoa(index))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("upload_chunk: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = int64(len(data))
	e.setHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return WrapTransport("upload_chunk", err)
	}
	defer iox.DrainClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Op: "upload_chunk"}
	}
	return nil
}

// DownloadChunk implements Endpoint. The byte range is requested with a
// standard Range header; both 200 and 206 responses are accepted.
func (e *HTTPEndpoint) DownloadChunk(ctx context.Context, sessionID string, index int, start, end int64) ([]byte, error) {
	url := e.url("/api/v1/sessions/" + sessionID + "/chunks/" + strconv.Itoa(index))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("download_chunk: create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))
	e.setHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, WrapTransport("download_chunk", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Op: "download_chunk"}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapTransport("download_chunk", err)
	}
	if got, want := int64(len(data)), end-start; got != want {
		return nil, fmt.Errorf("download_chunk: short body: got %d bytes, want %d", got, want)
	}
	return data, nil
}

// CompleteUpload implements Endpoint.
func (e *HTTPEndpoint) CompleteUpload(ctx context.Context, sessionID string, manifest Manifest) (*ResourceMeta, error) {
	var meta ResourceMeta
	url := e.url("/api/v1/sessions/" + sessionID + "/complete")
	if err := e.postJSON(ctx, "complete_upload", url, manifest, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SessionStatus implements Endpoint.
func (e *HTTPEndpoint) SessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	url := e.url("/api/v1/sessions/" + sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("session_status: create request: %w", err)
	}
	e.setHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, WrapTransport("session_status", err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, Op: "session_status"}
	}

	var status SessionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("session_status: decode response: %w", err)
	}
	return &status, nil
}

// PauseSession implements Endpoint.
func (e *HTTPEndpoint) PauseSession(ctx context.Context, sessionID string) error {
	return e.postJSON(ctx, "pause_session", e.url("/api/v1/sessions/"+sessionID+"/pause"), nil, nil)
}

// ResumeSession implements Endpoint.
func (e *HTTPEndpoint) ResumeSession(ctx context.Context, sessionID string) (*ResumeInfo, error) {
	var info ResumeInfo
	url := e.url("/api/v1/sessions/" + sessionID + "/resume")
	if err := e.postJSON(ctx, "resume_session", url, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CancelSession implements Endpoint.
func (e *HTTPEndpoint) CancelSession(ctx context.Context, sessionID string) error {
	url := e.url("/api/v1/sessions/" + sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("cancel_session: create request: %w", err)
	}
	e.setHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return WrapTransport("cancel_session", err)
	}
	defer iox.DiscardClose(resp.Body)
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Op: "cancel_session"}
	}
	return nil
}

// postJSON sends a JSON POST and optionally decodes a JSON response into out.
func (e *HTTPEndpoint) postJSON(ctx context.Context, op, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	e.setHeaders(req)

	resp, err := e.client.Do(req)
	if err != nil {
		return WrapTransport(op, err)
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Op: op}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return nil
}

func (e *HTTPEndpoint) url(path string) string {
	return e.config.BaseURL + path
}

func (e *HTTPEndpoint) setHeaders(req *http.Request) {
	for k, v := range e.config.Headers {
		req.Header.Set(k, v)
	}
}

// Verify HTTPEndpoint implements the endpoint interface.
var _ Endpoint = (*HTTPEndpoint)(nil)
