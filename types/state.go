// Package types defines core domain types for the Ferry transfer runtime.
//
//nolint:revive // types is a common Go package naming convention
package types

// Direction indicates whether a transfer moves bytes to or from the remote.
type Direction string

const (
	// DirectionUpload sends local bytes to the remote endpoint.
	DirectionUpload Direction = "upload"
	// DirectionDownload fetches remote bytes to the local side.
	DirectionDownload Direction = "download"
)

// TransferState is the lifecycle state of one transfer session.
type TransferState string

const (
	// StateInitiating means session negotiation with the remote is in progress.
	StateInitiating TransferState = "initiating"
	// StateTransferring means chunk workers are actively moving bytes.
	StateTransferring TransferState = "transferring"
	// StatePaused means in-flight requests were aborted and scheduling stopped.
	StatePaused TransferState = "paused"
	// StateCompleted means every chunk completed and finalization succeeded.
	StateCompleted TransferState = "completed"
	// StateFailed means a chunk exhausted retries, negotiation failed, or
	// finalization was rejected.
	StateFailed TransferState = "failed"
	// StateCancelled means the caller cancelled; the remote session is discarded.
	StateCancelled TransferState = "cancelled"
)

// IsTerminal returns true if no further transitions are permitted.
func (s TransferState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// CanTransition reports whether moving from s to next is a legal
// lifecycle transition. Terminal states admit nothing.
func (s TransferState) CanTransition(next TransferState) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StateInitiating:
		return next == StateTransferring || next == StateFailed || next == StateCancelled
	case StateTransferring:
		return next == StatePaused || next.IsTerminal()
	case StatePaused:
		return next == StateTransferring || next == StateCancelled || next == StateFailed
	default:
		return false
	}
}

// ChunkState is the status of a single chunk within a session.
// The set is closed: illegal transitions are rejected by CanTransition.
type ChunkState string

const (
	// ChunkPending means the chunk has not been handed to a worker yet.
	ChunkPending ChunkState = "pending"
	// ChunkInFlight means a worker currently owns the chunk.
	ChunkInFlight ChunkState = "in_flight"
	// ChunkCompleted means the remote acknowledged (upload) or the bytes
	// arrived intact (download).
	ChunkCompleted ChunkState = "completed"
	// ChunkFailed means the chunk exhausted its retry budget.
	ChunkFailed ChunkState = "failed"
)

// CanTransition reports whether a chunk may move from s to next.
// Completed is sticky except for an explicit reset to pending, which
// resume uses when the remote reports a chunk missing.
func (s ChunkState) CanTransition(next ChunkState) bool {
	switch s {
	case ChunkPending:
		return next == ChunkInFlight
	case ChunkInFlight:
		// Back to pending covers pause; failed covers retry exhaustion.
		return next == ChunkCompleted || next == ChunkPending || next == ChunkFailed
	case ChunkCompleted:
		// Only a server-reported loss on resume may reopen a completed chunk.
		return next == ChunkPending
	case ChunkFailed:
		return next == ChunkPending || next == ChunkInFlight
	default:
		return false
	}
}
