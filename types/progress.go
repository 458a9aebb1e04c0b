package types

// ProgressSnapshot is a derived, point-in-time view of transfer progress.
// Snapshots are recomputed on every chunk event and never persisted;
// observers receive copies, never a mutable reference.
type ProgressSnapshot struct {
	// TransferredBytes is the sum of bytes in completed chunks.
	TransferredBytes int64 `msgpack:"transferred_bytes" json:"transferred_bytes"`
	// TotalBytes is the immutable resource size.
	TotalBytes int64 `msgpack:"total_bytes" json:"total_bytes"`
	// InstantSpeed is the smoothed instantaneous throughput in bytes/sec.
	InstantSpeed float64 `msgpack:"instant_speed" json:"instant_speed"`
	// AverageSpeed is the average throughput since the logical start.
	AverageSpeed float64 `msgpack:"average_speed" json:"average_speed"`
	// Percentage is completion in [0, 100].
	Percentage float64 `msgpack:"percentage" json:"percentage"`
	// ETASeconds is the estimated seconds remaining, -1 when unknown
	// (no throughput observed yet).
	ETASeconds float64 `msgpack:"eta_seconds" json:"eta_seconds"`
}
