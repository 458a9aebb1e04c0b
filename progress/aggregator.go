// Package progress derives human-facing throughput figures from raw
// chunk completions: smoothed instantaneous speed, lifetime average,
// percentage, and a blended ETA.
package progress

import (
	"sync"
	"time"

	"github.com/pithecene-io/ferry/types"
)

const (
	// emaAlpha weights the newest throughput sample. 0.2 smooths out
	// per-chunk variance without lagging a genuine speed change by more
	// than a handful of chunks.
	emaAlpha = 0.2

	// ETA uses a blend of smoothed instant speed and lifetime average.
	// Instant alone makes the estimate twitch; average alone never
	// recovers from a slow start.
	etaInstantWeight = 0.7
	etaAverageWeight = 0.3
)

// Aggregator turns chunk completions into progress snapshots. Speeds are
// bytes per second. Pausing freezes the clock: time spent paused does not
// dilute the average or the ETA.
type Aggregator struct {
	mu    sync.Mutex
	total int64
	clock func() time.Time

	start       time.Time
	lastSample  time.Time
	pausedAt    time.Time
	ema         float64
	sampled     bool
	transferred int64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock substitutes the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// New creates an aggregator for a transfer of totalBytes.
func New(totalBytes int64, opts ...Option) *Aggregator {
	a := &Aggregator{total: totalBytes, clock: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start marks the beginning of transfer time.
func (a *Aggregator) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.clock()
	a.start = now
	a.lastSample = now
}

// Pause freezes the clock. Idempotent while paused.
func (a *Aggregator) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pausedAt.IsZero() {
		a.pausedAt = a.clock()
	}
}

// Resume shifts the logical start forward by the paused duration, so
// elapsed time and the average speed exclude the gap.
func (a *Aggregator) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pausedAt.IsZero() {
		return
	}
	gap := a.clock().Sub(a.pausedAt)
	a.start = a.start.Add(gap)
	a.lastSample = a.lastSample.Add(gap)
	a.pausedAt = time.Time{}
}

// OnChunk folds one completed chunk into the throughput model and
// returns the resulting snapshot. transferredBytes is the session's
// total over all completed chunks, which may jump by more than
// chunkBytes when the server confirms chunks on resume.
func (a *Aggregator) OnChunk(chunkBytes, transferredBytes int64) types.ProgressSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock()
	a.transferred = transferredBytes

	if dt := now.Sub(a.lastSample).Seconds(); dt > 0 {
		sample := float64(chunkBytes) / dt
		if a.sampled {
			a.ema = emaAlpha*sample + (1-emaAlpha)*a.ema
		} else {
			a.ema = sample
			a.sampled = true
		}
		a.lastSample = now
	}

	return a.snapshotLocked(now)
}

// Snapshot returns the current progress view without folding in a sample.
func (a *Aggregator) Snapshot() types.ProgressSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(a.clock())
}

func (a *Aggregator) snapshotLocked(now time.Time) types.ProgressSnapshot {
	snap := types.ProgressSnapshot{
		TransferredBytes: a.transferred,
		TotalBytes:       a.total,
		InstantSpeed:     a.ema,
		ETASeconds:       -1,
	}

	if a.total > 0 {
		pct := 100 * float64(a.transferred) / float64(a.total)
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		snap.Percentage = pct
	}

	effectiveNow := now
	if !a.pausedAt.IsZero() {
		effectiveNow = a.pausedAt
	}
	if elapsed := effectiveNow.Sub(a.start).Seconds(); elapsed > 0 {
		snap.AverageSpeed = float64(a.transferred) / elapsed
	}

	blended := etaInstantWeight*snap.InstantSpeed + etaAverageWeight*snap.AverageSpeed
	if remaining := a.total - a.transferred; remaining > 0 && blended > 0 {
		snap.ETASeconds = float64(remaining) / blended
	} else if remaining <= 0 {
		snap.ETASeconds = 0
	}

	return snap
}
