package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/pithecene-io/ferry/log"
	"github.com/pithecene-io/ferry/remote"
	"github.com/pithecene-io/ferry/retry"
	"github.com/pithecene-io/ferry/types"
)

// chunkTask is the unit of work handed to one worker. The task owns its
// byte range exclusively until the worker reports a terminal status.
type chunkTask struct {
	index      int
	start, end int64
}

// reportKind discriminates worker reports. Every code path out of a
// worker emits exactly one terminal report (completed, failed, aborted)
// after zero or more intermediate ones (started, retrying).
type reportKind int

const (
	reportStarted reportKind = iota
	reportRetrying
	reportCompleted
	reportFailed
	reportAborted
)

// workerReport is the only channel through which workers communicate.
// Workers never touch the session; the coordinator's apply loop holds
// the single-writer role.
type workerReport struct {
	index   int
	kind    reportKind
	attempt int
	// data holds the downloaded bytes; ownership transfers to the
	// coordinator's chunk buffer on a completed report.
	data    []byte
	size    int64
	elapsed time.Duration
	err     error
	// fatal marks a non-retryable failure: the whole transfer must stop.
	fatal bool
}

// worker transfers exactly one chunk, retrying transient failures per
// the retry policy.
type worker struct {
	endpoint  remote.Endpoint
	policy    *retry.Policy
	direction types.Direction
	sessionID string
	// source supplies upload bytes; nil for downloads. Concurrent ReadAt
	// is safe, so workers read their own ranges.
	source io.ReaderAt
	log    *log.Logger
}

// run transfers the task's chunk and streams reports into out.
// Cancellation of ctx is reported as aborted, never as failure: pause
// and cancel are user intent, not errors.
func (w *worker) run(ctx context.Context, task chunkTask, out chan<- workerReport) {
	out <- workerReport{index: task.index, kind: reportStarted}

	var payload []byte
	if w.direction == types.DirectionUpload {
		buf := make([]byte, task.end-task.start)
		if _, err := w.source.ReadAt(buf, task.start); err != nil {
			// Local read errors cannot be fixed by retrying the network.
			out <- workerReport{
				index: task.index,
				kind:  reportFailed,
				err:   fmt.Errorf("read chunk %d: %w", task.index, err),
				fatal: true,
			}
			return
		}
		payload = buf
	}

	for attempt := 0; ; attempt++ {
		started := time.Now()
		data, err := w.transferOnce(ctx, task, payload)
		if err == nil {
			out <- workerReport{
				index:   task.index,
				kind:    reportCompleted,
				attempt: attempt,
				data:    data,
				size:    task.end - task.start,
				elapsed: time.Since(started),
			}
			return
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			out <- workerReport{index: task.index, kind: reportAborted, attempt: attempt}
			return
		}

		if !w.policy.ShouldRetry(err) {
			w.log.Warn("chunk failed fatally",
				zap.Int("chunk", task.index), zap.Error(err))
			out <- workerReport{index: task.index, kind: reportFailed, attempt: attempt, err: err, fatal: true}
			return
		}

		if attempt >= w.policy.MaxRetries {
			w.log.Warn("chunk exhausted retries",
				zap.Int("chunk", task.index), zap.Int("attempts", attempt+1), zap.Error(err))
			out <- workerReport{index: task.index, kind: reportFailed, attempt: attempt, err: err}
			return
		}

		w.log.Debug("chunk retrying",
			zap.Int("chunk", task.index), zap.Int("attempt", attempt+1), zap.Error(err))
		out <- workerReport{index: task.index, kind: reportRetrying, attempt: attempt + 1, err: err}

		if err := w.policy.Sleep(ctx, attempt+1); err != nil {
			out <- workerReport{index: task.index, kind: reportAborted, attempt: attempt + 1}
			return
		}
	}
}

// transferOnce performs a single transport attempt.
func (w *worker) transferOnce(ctx context.Context, task chunkTask, payload []byte) ([]byte, error) {
	if w.direction == types.DirectionUpload {
		return nil, w.endpoint.UploadChunk(ctx, w.sessionID, task.index, payload)
	}
	return w.endpoint.DownloadChunk(ctx, w.sessionID, task.index, task.start, task.end)
}
