package transfer

// Concurrency bounds for one transfer.
const (
	// MinConcurrent is the floor on parallel chunk requests.
	MinConcurrent = 2
	// MaxConcurrent is the hard ceiling on parallel chunk requests.
	// Each in-flight chunk pins a full chunk buffer, and the remote
	// serializes on per-session locks, so more is counterproductive.
	MaxConcurrent = 4
)

const mib = 1 << 20

// ConcurrencyFor computes the worker count for a transfer. Sized once at
// transfer start and never re-tuned: small files get more parallelism
// (per-request overhead dominates), huge files get less (memory and
// server-side session contention).
func ConcurrencyFor(totalBytes int64, totalChunks int) int {
	sizeMB := totalBytes / mib

	var target int
	switch {
	case sizeMB < 50:
		target = clamp(ceilDiv(totalChunks, 5), 2, 6)
	case sizeMB < 200:
		target = clamp(ceilDiv(totalChunks, 10), 2, 4)
	default:
		target = clamp(ceilDiv(totalChunks, 20), 2, 3)
	}

	return clamp(target, MinConcurrent, MaxConcurrent)
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
