package types

// EventType discriminates transfer event payloads.
type EventType string

// Event type constants. Every observable change in a transfer is
// published as exactly one of these.
const (
	// EventTypeState is a transfer lifecycle transition.
	EventTypeState EventType = "state"
	// EventTypeChunk is a chunk status transition reported by a worker.
	EventTypeChunk EventType = "chunk"
	// EventTypeProgress carries a recomputed progress snapshot.
	EventTypeProgress EventType = "progress"
)

// IsTerminal returns true if the event announces a terminal transfer state.
func (e *TransferEvent) IsTerminal() bool {
	return e.Type == EventTypeState && e.State.IsTerminal()
}

// TransferEvent is the envelope for all events published by a coordinator.
// Fields carry msgpack tags for the journal wire format and json tags for
// adapter payloads and CLI rendering.
type TransferEvent struct {
	// TransferID is the coordinator-assigned transfer identifier.
	TransferID string `msgpack:"transfer_id" json:"transfer_id"`
	// Seq is the monotonic per-transfer sequence number, starts at 1.
	Seq int64 `msgpack:"seq" json:"seq"`
	// Type is the event type discriminator.
	Type EventType `msgpack:"type" json:"type"`
	// Ts is the event timestamp in ISO 8601 UTC format.
	Ts string `msgpack:"ts" json:"ts"`
	// Direction is upload or download.
	Direction Direction `msgpack:"direction" json:"direction"`
	// State is the transfer state at the time of the event.
	State TransferState `msgpack:"state" json:"state"`
	// Chunk is set for chunk events.
	Chunk *ChunkEvent `msgpack:"chunk,omitempty" json:"chunk,omitempty"`
	// Progress is set for progress events.
	Progress *ProgressSnapshot `msgpack:"progress,omitempty" json:"progress,omitempty"`
	// Reason is a human-readable cause, set on failed/cancelled state events.
	Reason string `msgpack:"reason,omitempty" json:"reason,omitempty"`
	// FailedChunks lists chunk indices that exhausted retries, set on
	// terminal state events for diagnostics.
	FailedChunks []int `msgpack:"failed_chunks,omitempty" json:"failed_chunks,omitempty"`
}

// ChunkEvent describes one chunk status transition.
type ChunkEvent struct {
	// Index is the chunk position in [0, totalChunks).
	Index int `msgpack:"index" json:"index"`
	// Status is the chunk state after the transition.
	Status ChunkState `msgpack:"status" json:"status"`
	// Attempt is the retry counter at the time of the transition.
	Attempt int `msgpack:"attempt" json:"attempt"`
	// Bytes is the chunk byte length, set when Status is completed.
	Bytes int64 `msgpack:"bytes,omitempty" json:"bytes,omitempty"`
	// ElapsedMs is the wall time of the successful attempt in milliseconds.
	ElapsedMs int64 `msgpack:"elapsed_ms,omitempty" json:"elapsed_ms,omitempty"`
}
