// Package remote defines the transfer endpoint boundary.
//
// The coordinator drives every transfer through the Endpoint interface;
// the wire protocol behind it (ferry's own HTTP API, S3 multipart, or an
// in-memory stub) is an implementation detail. All blocking calls take a
// context and must abort promptly when it is cancelled — pause and cancel
// depend on that.
package remote

import "context"

// UploadInit is the server's answer to an upload negotiation.
type UploadInit struct {
	// SessionID is the opaque session identifier assigned by the remote.
	SessionID string `json:"session_id"`
	// ChunkSize is the fixed byte size per chunk, server-confirmed.
	ChunkSize int64 `json:"chunk_size"`
	// TotalChunks is ceil(size / ChunkSize).
	TotalChunks int `json:"total_chunks"`
}

// DownloadInit is the server's answer to a download negotiation.
type DownloadInit struct {
	SessionID string `json:"session_id"`
	// FileName is the stored name of the resource.
	FileName string `json:"file_name"`
	// TotalBytes is the exact resource size.
	TotalBytes int64 `json:"total_bytes"`
	// ChunkSize is the server-assigned chunk size.
	ChunkSize   int64 `json:"chunk_size"`
	TotalChunks int   `json:"total_chunks"`
}

// SessionStatus reports which chunks the server has durably received.
// This is the authoritative resumption source; local state is advisory.
type SessionStatus struct {
	// CompletedChunks holds the indices the server acknowledges, ascending.
	CompletedChunks []int `json:"completed_chunks"`
}

// ResumeInfo is the server's answer to a resume request.
type ResumeInfo struct {
	// MissingChunks holds the indices the server still needs, ascending.
	MissingChunks []int `json:"missing_chunks"`
}

// Manifest is the final upload descriptor sent with the complete call.
// The server assembles and validates the stored object against it.
type Manifest struct {
	TotalChunks int   `json:"total_chunks"`
	TotalBytes  int64 `json:"total_bytes"`
	// Checksum is an optional hex SHA-256 of the assembled content.
	Checksum string `json:"checksum,omitempty"`
}

// ResourceMeta is the server-confirmed metadata of a finalized upload.
type ResourceMeta struct {
	ResourceID string `json:"resource_id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Checksum   string `json:"checksum,omitempty"`
}

// Endpoint is the remote transfer API the coordinator depends on.
//
/// Implementations must be safe for concurrent use: chunk calls for one
// session overlap up to the coordinator's concurrency limit.
type Endpoint interface {
	// InitiateUpload declares a new resource and opens an upload session.
	InitiateUpload(ctx context.Context, name, parentID string, size int64) (*UploadInit, error)

	// InitiateDownload opens a download session for an existing resource.
	InitiateDownload(ctx context.Context, resourceID string) (*DownloadInit, error)

	// UploadChunk sends one chunk's bytes. The server acknowledges by
	// returning nil. Cancelling ctx aborts the request mid-flight.
	UploadChunk(ctx context.Context, sessionID string, index int, data []byte) error

	// DownloadChunk fetches the byte range [start, end) of the resource.
	DownloadChunk(ctx context.Context, sessionID string, index int, start, end int64) ([]byte, error)

	// CompleteUpload submits the final manifest. The server assembles and
	// validates the stored object; rejection fails the transfer.
	CompleteUpload(ctx context.Context, sessionID string, manifest Manifest) (*ResourceMeta, error)

	// SessionStatus returns the authoritative set of received chunks.
	SessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error)

	// PauseSession tells the server the client stopped scheduling chunks.
	PauseSession(ctx context.Context, sessionID string) error

	// ResumeSession reopens a paused session and returns what is missing.
	ResumeSession(ctx context.Context, sessionID string) (*ResumeInfo, error)

	// CancelSession discards the session and any partial server state.
	CancelSession(ctx context.Context, sessionID string) error
}
