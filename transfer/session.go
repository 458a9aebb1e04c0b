package transfer

import (
	"fmt"

	"github.com/pithecene-io/ferry/types"
)

// Session mirrors the server-side state of one transfer. It is owned
// exclusively by its Coordinator: workers report transitions over a
// channel and only the coordinator's apply loop mutates the session, so
// no lock guards the chunk status array.
type Session struct {
	// ID is the opaque session identifier assigned by the remote.
	ID string
	// ResourceID identifies the file being transferred.
	ResourceID string
	// FileName is the resource's display name.
	FileName string
	// TotalBytes is the exact resource size, immutable once opened.
	TotalBytes int64
	// ChunkSize is the fixed byte size per chunk; the final chunk may be
	// shorter.
	ChunkSize int64
	// TotalChunks is ceil(TotalBytes / ChunkSize).
	TotalChunks int

	state            types.TransferState
	chunkStatus      []types.ChunkState
	transferredBytes int64
}

// newSession creates a session in the transferring state with all chunks
// pending. Negotiation has already happened by the time one exists.
func newSession(id, resourceID, fileName string, totalBytes, chunkSize int64, totalChunks int) (*Session, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	if want := chunkCount(totalBytes, chunkSize); totalChunks != want {
		return nil, fmt.Errorf("chunk count mismatch: remote says %d, ceil(%d/%d) = %d",
			totalChunks, totalBytes, chunkSize, want)
	}

	return &Session{
		ID:          id,
		ResourceID:  resourceID,
		FileName:    fileName,
		TotalBytes:  totalBytes,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		state:       types.StateTransferring,
		chunkStatus: make([]types.ChunkState, totalChunks),
	}, nil
}

func chunkCount(totalBytes, chunkSize int64) int {
	if totalBytes == 0 {
		return 0
	}
	return int((totalBytes + chunkSize - 1) / chunkSize)
}

// State returns the current lifecycle state.
func (s *Session) State() types.TransferState { return s.state }

// setState applies a lifecycle transition, rejecting illegal ones.
func (s *Session) setState(next types.TransferState) error {
	if !s.state.CanTransition(next) {
		return fmt.Errorf("illegal state transition %s -> %s", s.state, next)
	}
	s.state = next
	return nil
}

// ChunkStatus returns the status of one chunk.
func (s *Session) ChunkStatus(index int) types.ChunkState {
	st := s.chunkStatus[index]
	if st == "" {
		return types.ChunkPending
	}
	return st
}

// setChunk applies a chunk transition, rejecting illegal ones, and keeps
// transferredBytes equal to the sum over completed chunks.
func (s *Session) setChunk(index int, next types.ChunkState) error {
	if index < 0 || index >= s.TotalChunks {
		return fmt.Errorf("chunk index %d out of range [0, %d)", index, s.TotalChunks)
	}
	cur := s.ChunkStatus(index)
	if cur == next {
		return nil
	}
	if !cur.CanTransition(next) {
		return fmt.Errorf("illegal chunk %d transition %s -> %s", index, cur, next)
	}
	s.chunkStatus[index] = next
	s.recomputeTransferred()
	return nil
}

// recomputeTransferred derives transferredBytes from the status array.
// Derivation rather than incremental bookkeeping keeps the invariant
// structural: the counter cannot drift from the chunks it summarizes.
func (s *Session) recomputeTransferred() {
	var total int64
	for i, st := range s.chunkStatus {
		if st == types.ChunkCompleted {
			total += s.ChunkLen(i)
		}
	}
	s.transferredBytes = total
}

// TransferredBytes is the sum of bytes in completed chunks.
func (s *Session) TransferredBytes() int64 { return s.transferredBytes }

// ChunkRange returns the byte range [start, end) of a chunk. The final
// chunk is clipped to TotalBytes.
func (s *Session) ChunkRange(index int) (start, end int64) {
	start = int64(index) * s.ChunkSize
	end = start + s.ChunkSize
	if end > s.TotalBytes {
		end = s.TotalBytes
	}
	return start, end
}

// ChunkLen returns the byte length of a chunk.
func (s *Session) ChunkLen(index int) int64 {
	start, end := s.ChunkRange(index)
	return end - start
}

// incompleteChunks returns the indices not yet completed, ascending.
func (s *Session) incompleteChunks() []int {
	var out []int
	for i := 0; i < s.TotalChunks; i++ {
		if s.ChunkStatus(i) != types.ChunkCompleted {
			out = append(out, i)
		}
	}
	return out
}

// failedChunks returns the indices in the failed state, ascending.
func (s *Session) failedChunks() []int {
	var out []int
	for i := 0; i < s.TotalChunks; i++ {
		if s.ChunkStatus(i) == types.ChunkFailed {
			out = append(out, i)
		}
	}
	return out
}

// allCompleted reports whether every chunk is completed.
func (s *Session) allCompleted() bool {
	for i := 0; i < s.TotalChunks; i++ {
		if s.ChunkStatus(i) != types.ChunkCompleted {
			return false
		}
	}
	return true
}

// resetInFlight returns every in-flight chunk to pending. Called when a
// round is interrupted by pause or cancel: aborted requests lose nothing
// already completed.
func (s *Session) resetInFlight() {
	for i, st := range s.chunkStatus {
		if st == types.ChunkInFlight {
			s.chunkStatus[i] = types.ChunkPending
		}
	}
}

// completeFromServer marks a chunk completed on the server's authority.
// Used on upload resume when the server durably holds a chunk whose ack
// never reached the client.
func (s *Session) completeFromServer(index int) {
	s.chunkStatus[index] = types.ChunkCompleted
	s.recomputeTransferred()
}

// reopenChunk forces a chunk back to pending regardless of its current
// state. Used on resume when the server reports a chunk missing that the
// client believed completed (server-side loss).
func (s *Session) reopenChunk(index int) {
	s.chunkStatus[index] = types.ChunkPending
	s.recomputeTransferred()
}
