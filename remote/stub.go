package remote

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stub is an in-memory Endpoint for tests. It mirrors the server-side
// session bookkeeping a real endpoint would keep and lets tests script
// per-chunk failures, latency, and server-side chunk loss.
//
// Safe for concurrent use; chunk calls honor context cancellation so
// pause/cancel paths can be exercised deterministically.
type Stub struct {
	mu sync.Mutex

	// ChunkSize is handed out on every initiate call.
	ChunkSize int64
	// Latency is an optional per-chunk-call delay, cancellable via context.
	Latency time.Duration
	// RejectComplete makes CompleteUpload fail with HTTP 422.
	RejectComplete bool

	resources map[string]*stubResource
	sessions  map[string]*stubSession
	failures  map[int]*failScript

	inflight    int
	maxInflight int

	statusCalls int
	resumeCalls int
}

type stubResource struct {
	name string
	data []byte
}

type stubSession struct {
	id          string
	upload      bool
	name        string
	parentID    string
	resourceID  string
	size        int64
	totalChunks int
	chunks      map[int][]byte
	paused      bool
	cancelled   bool
	finalized   bool
}

// failScript makes a chunk index fail a scripted number of times.
type failScript struct {
	remaining int
	code      int
}

// NewStub creates a stub endpoint with the given chunk size.
func NewStub(chunkSize int64) *Stub {
	return &Stub{
		ChunkSize: chunkSize,
		resources: make(map[string]*stubResource),
		sessions:  make(map[string]*stubSession),
		failures:  make(map[int]*failScript),
	}
}

// AddResource registers downloadable content under a resource id.
func (s *Stub) AddResource(id, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[id] = &stubResource{name: name, data: data}
}

// FailChunk scripts `times` transient (HTTP 503) failures for a chunk index.
func (s *Stub) FailChunk(index, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[index] = &failScript{remaining: times, code: http.StatusServiceUnavailable}
}

// FailChunkFatal scripts a permanent HTTP 400 failure for a chunk index.
func (s *Stub) FailChunkFatal(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[index] = &failScript{remaining: -1, code: http.StatusBadRequest}
}

// LoseChunk drops a durably-received chunk, simulating server-side data
// loss that resume must detect.
func (s *Stub) LoseChunk(sessionID string, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		delete(sess.chunks, index)
	}
}

// MaxInflight returns the peak number of concurrent chunk calls observed.
func (s *Stub) MaxInflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInflight
}

// StatusCalls returns how many times SessionStatus was queried.
func (s *Stub) StatusCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusCalls
}

// ResumeCalls returns how many times ResumeSession was invoked.
func (s *Stub) ResumeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeCalls
}

// Cancelled reports whether CancelSession was called for the session.
func (s *Stub) Cancelled(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return ok && sess.cancelled
}

// Finalized reports whether CompleteUpload succeeded for the session.
func (s *Stub) Finalized(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	return ok && sess.finalized
}

// AssembledContent concatenates received upload chunks in index order,
// the same assembly the real server performs on complete.
func (s *Stub) AssembledContent(sessionID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	var out []byte
	for i := 0; i < sess.totalChunks; i++ {
		out = append(out, sess.chunks[i]...)
	}
	return out
}

// ReceivedChunks returns the indices the stub holds, ascending.
func (s *Stub) ReceivedChunks(sessionID string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return sortedIndices(sess.chunks)
}

// InitiateUpload implements Endpoint.
func (s *Stub) InitiateUpload(_ context.Context, name, parentID string, size int64) (*UploadInit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &stubSession{
		id:          uuid.New().String(),
		upload:      true,
		name:        name,
		parentID:    parentID,
		size:        size,
		totalChunks: chunkCount(size, s.ChunkSize),
		chunks:      make(map[int][]byte),
	}
	s.sessions[sess.id] = sess

	return &UploadInit{SessionID: sess.id, ChunkSize: s.ChunkSize, TotalChunks: sess.totalChunks}, nil
}

// InitiateDownload implements Endpoint.
func (s *Stub) InitiateDownload(_ context.Context, resourceID string) (*DownloadInit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.resources[resourceID]
	if !ok {
		return nil, &StatusError{Code: http.StatusNotFound, Op: "initiate_download"}
	}

	size := int64(len(res.data))
	sess := &stubSession{
		id:          uuid.New().String(),
		resourceID:  resourceID,
		name:        res.name,
		size:        size,
		totalChunks: chunkCount(size, s.ChunkSize),
		chunks:      make(map[int][]byte),
	}
	s.sessions[sess.id] = sess

	return &DownloadInit{
		SessionID:   sess.id,
		FileName:    res.name,
		TotalBytes:  size,
		ChunkSize:   s.ChunkSize,
		TotalChunks: sess.totalChunks,
	}, nil
}

// UploadChunk implements Endpoint.
func (s *Stub) UploadChunk(ctx context.Context, sessionID string, index int, data []byte) error {
	if err := s.enterChunkCall(ctx); err != nil {
		return err
	}
	defer s.exitChunkCall()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.cancelled {
		return &StatusError{Code: http.StatusNotFound, Op: "upload_chunk"}
	}
	if err := s.consumeFailureLocked(index, "upload_chunk"); err != nil {
		return err
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	sess.chunks[index] = stored
	return nil
}

// DownloadChunk implements Endpoint.
func (s *Stub) DownloadChunk(ctx context.Context, sessionID string, index int, start, end int64) ([]byte, error) {
	if err := s.enterChunkCall(ctx); err != nil {
		return nil, err
	}
	defer s.exitChunkCall()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.cancelled {
		return nil, &StatusError{Code: http.StatusNotFound, Op: "download_chunk"}
	}
	if err := s.consumeFailureLocked(index, "download_chunk"); err != nil {
		return nil, err
	}

	res, ok := s.resources[sess.resourceID]
	if !ok {
		return nil, &StatusError{Code: http.StatusNotFound, Op: "download_chunk"}
	}
	if start < 0 || end > int64(len(res.data)) || start >= end {
		return nil, &StatusError{Code: http.StatusRequestedRangeNotSatisfiable, Op: "download_chunk"}
	}

	out := make([]byte, end-start)
	copy(out, res.data[start:end])
	sess.chunks[index] = nil // mark served for SessionStatus
	return out, nil
}

// CompleteUpload implements Endpoint.
func (s *Stub) CompleteUpload(_ context.Context, sessionID string, manifest Manifest) (*ResourceMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.cancelled || !sess.upload {
		return nil, &StatusError{Code: http.StatusNotFound, Op: "complete_upload"}
	}
	if s.RejectComplete {
		return nil, &StatusError{Code: http.StatusUnprocessableEntity, Op: "complete_upload"}
	}
	if manifest.TotalChunks != sess.totalChunks {
		return nil, &StatusError{Code: http.StatusUnprocessableEntity, Op: "complete_upload"}
	}

	var total int64
	for i := 0; i < sess.totalChunks; i++ {
		chunk, ok := sess.chunks[i]
		if !ok {
			return nil, &StatusError{Code: http.StatusUnprocessableEntity, Op: "complete_upload"}
		}
		total += int64(len(chunk))
	}
	if total != sess.size || manifest.TotalBytes != sess.size {
		return nil, &StatusError{Code: http.StatusUnprocessableEntity, Op: "complete_upload"}
	}

	sess.finalized = true
	return &ResourceMeta{
		ResourceID: uuid.New().String(),
		Name:       sess.name,
		Size:       sess.size,
		Checksum:   manifest.Checksum,
	}, nil
}

// SessionStatus implements Endpoint.
func (s *Stub) SessionStatus(_ context.Context, sessionID string) (*SessionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statusCalls++
	sess, ok := s.sessions[sessionID]
	if !ok || sess.cancelled {
		return nil, &StatusError{Code: http.StatusNotFound, Op: "session_status"}
	}
	return &SessionStatus{CompletedChunks: sortedIndices(sess.chunks)}, nil
}

// PauseSession implements Endpoint.
func (s *Stub) PauseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.cancelled {
		return &StatusError{Code: http.StatusNotFound, Op: "pause_session"}
	}
	sess.paused = true
	return nil
}

// ResumeSession implements Endpoint.
func (s *Stub) ResumeSession(_ context.Context, sessionID string) (*ResumeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resumeCalls++
	sess, ok := s.sessions[sessionID]
	if !ok || sess.cancelled {
		return nil, &StatusError{Code: http.StatusNotFound, Op: "resume_session"}
	}
	sess.paused = false

	var missing []int
	for i := 0; i < sess.totalChunks; i++ {
		if _, ok := sess.chunks[i]; !ok {
			missing = append(missing, i)
		}
	}
	return &ResumeInfo{MissingChunks: missing}, nil
}

// CancelSession implements Endpoint.
func (s *Stub) CancelSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return &StatusError{Code: http.StatusNotFound, Op: "cancel_session"}
	}
	sess.cancelled = true
	sess.chunks = make(map[int][]byte)
	return nil
}

// enterChunkCall tracks in-flight concurrency and applies scripted latency.
func (s *Stub) enterChunkCall(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	latency := s.Latency
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			// Callers only register the exit on success.
			s.exitChunkCall()
			return ctx.Err()
		case <-time.After(latency):
		}
	}
	return nil
}

func (s *Stub) exitChunkCall() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

// consumeFailureLocked applies one step of a chunk's failure script.
func (s *Stub) consumeFailureLocked(index int, op string) error {
	script, ok := s.failures[index]
	if !ok {
		return nil
	}
	if script.remaining < 0 {
		return &StatusError{Code: script.code, Op: op}
	}
	if script.remaining > 0 {
		script.remaining--
		return &StatusError{Code: script.code, Op: op}
	}
	return nil
}

func chunkCount(size, chunkSize int64) int {
	if size == 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

func sortedIndices(m map[int][]byte) []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

var _ Endpoint = (*Stub)(nil)

// String aids test failure messages.
func (s *Stub) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("stub{sessions=%d, maxInflight=%d}", len(s.sessions), s.maxInflight)
}
