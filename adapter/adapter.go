// Package adapter defines the notification boundary for finished
// transfers.
//
// Adapters publish transfer completion events to downstream systems.
// The CLI owns adapter lifecycle; users provide configuration only.
package adapter

import "context"

// TransferCompletedEvent is the payload published when a transfer
// reaches a terminal state.
type TransferCompletedEvent struct {
	EventType    string `json:"event_type"` // always "transfer_completed"
	TransferID   string `json:"transfer_id"`
	Direction    string `json:"direction"` // upload or download
	FileName     string `json:"file_name"`
	ResourceID   string `json:"resource_id,omitempty"`
	Outcome      string `json:"outcome"` // completed, failed, cancelled
	Bytes        int64  `json:"bytes"`
	DurationMs   int64  `json:"duration_ms"`
	Checksum     string `json:"checksum,omitempty"`
	FailedChunks []int  `json:"failed_chunks,omitempty"`
	Timestamp    string `json:"timestamp"` // ISO 8601
}

// EventTypeTransferCompleted is the EventType value for all events.
const EventTypeTransferCompleted = "transfer_completed"

// Adapter publishes transfer completion events to a downstream system.
// Implementations must be safe for single-use per transfer.
type Adapter interface {
	// Publish sends a transfer completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *TransferCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
