package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pithecene-io/ferry/log"
	"github.com/pithecene-io/ferry/progress"
	"github.com/pithecene-io/ferry/remote"
	"github.com/pithecene-io/ferry/retry"
	"github.com/pithecene-io/ferry/types"
)

// ErrNotPausable is returned by Pause when the transfer is not transferring.
var ErrNotPausable = errors.New("transfer is not transferring")

// ErrNotResumable is returned by Resume when the transfer is not paused.
var ErrNotResumable = errors.New("transfer is not paused")

// ErrAlreadyTerminal is returned by Cancel after the transfer finished.
var ErrAlreadyTerminal = errors.New("transfer already reached a terminal state")

// UploadRequest describes the resource to upload.
type UploadRequest struct {
	// Name is the target resource name.
	Name string
	// ParentID is the destination folder id.
	ParentID string
	// Size is the exact content size in bytes.
	Size int64
	// Content supplies the bytes. Concurrent ReadAt calls must be safe;
	// *os.File and *bytes.Reader both qualify.
	Content io.ReaderAt
}

// Options tune a coordinator. The zero value uses the endpoint-agnostic
// defaults.
type Options struct {
	// Policy overrides the default retry policy.
	Policy *retry.Policy
	// Logger overrides the default transfer logger.
	Logger *log.Logger
	// Concurrency overrides the computed worker count (clamped to
	// [MinConcurrent, MaxConcurrent]). Zero means compute from size.
	Concurrency int
	// Checksum enables a SHA-256 over the upload content in the final
	// manifest so the server can validate the assembled object.
	Checksum bool
}

// Result is the terminal outcome of a transfer.
type Result struct {
	// State is one of completed, failed, cancelled.
	State types.TransferState
	// Blob is the assembled content, set for completed downloads.
	Blob []byte
	// Meta is the server-confirmed resource metadata, set for completed
	// uploads.
	Meta *remote.ResourceMeta
	// FailedChunks lists indices that exhausted retries, for diagnostics.
	FailedChunks []int
	// Err is the cause when State is failed.
	Err error
}

// roundOutcome summarizes one scheduling round.
type roundOutcome struct {
	failed   bool
	fatalErr error
}

// Coordinator owns one transfer session end to end: negotiation, chunk
// fan-out under the semaphore, pause/resume/cancel, progress, and final
// assembly. A coordinator is single-use; Run may be called once.
//
// The session is mutated only by the run loop (single-writer); control
// methods communicate through flags and the round cancel function.
type Coordinator struct {
	id        string
	direction types.Direction
	endpoint  remote.Endpoint
	policy    *retry.Policy
	logger    *log.Logger
	checksum  bool

	upload     *UploadRequest // nil for downloads
	resourceID string         // set for downloads

	bus *eventBus
	agg *progress.Aggregator
	seq int64 // run-loop-only

	// Run-loop-owned transfer state.
	session     *Session
	buffers     [][]byte // download chunk buffers, indexed by chunk
	concurrency int

	mu              sync.Mutex
	state           types.TransferState // mirror for control methods
	roundCancel     context.CancelFunc
	pauseRequested  bool
	cancelRequested bool
	resumeCh        chan struct{}

	done   chan struct{}
	result *Result
}

// NewUpload creates an upload coordinator. The transfer id is assigned
// here; Run starts the work.
func NewUpload(endpoint remote.Endpoint, req UploadRequest, opts Options) *Coordinator {
	c := newCoordinator(endpoint, types.DirectionUpload, req.Name, opts)
	c.upload = &req
	return c
}

// NewDownload creates a download coordinator for a remote resource.
func NewDownload(endpoint remote.Endpoint, resourceID string, opts Options) *Coordinator {
	c := newCoordinator(endpoint, types.DirectionDownload, resourceID, opts)
	c.resourceID = resourceID
	return c
}

func newCoordinator(endpoint remote.Endpoint, direction types.Direction, resource string, opts Options) *Coordinator {
	id := uuid.New().String()

	policy := opts.Policy
	if policy == nil {
		policy = retry.NewPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger(id, direction, resource)
	}

	return &Coordinator{
		id:          id,
		direction:   direction,
		endpoint:    endpoint,
		policy:      policy,
		logger:      logger,
		checksum:    opts.Checksum,
		concurrency: opts.Concurrency,
		bus:         newEventBus(),
		state:       types.StateInitiating,
		done:        make(chan struct{}),
	}
}

// ID returns the transfer identifier used for registry dispatch.
func (c *Coordinator) ID() string { return c.id }

// Direction returns upload or download.
func (c *Coordinator) Direction() types.Direction { return c.direction }

// FileName returns the resource display name. For downloads it is known
// only after negotiation; before that the resource id is returned.
func (c *Coordinator) FileName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.FileName != "" {
		return c.session.FileName
	}
	if c.upload != nil {
		return c.upload.Name
	}
	return c.resourceID
}

// SessionID returns the remote session id, or empty before negotiation
// completes.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID
}

// State returns the current lifecycle state.
func (c *Coordinator) State() types.TransferState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe attaches an observer to the transfer's event stream.
func (c *Coordinator) Subscribe() (<-chan types.TransferEvent, func()) {
	return c.bus.Subscribe()
}

// Done is closed when the transfer reaches a terminal state.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Result returns the terminal outcome, or nil before Done is closed.
func (c *Coordinator) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Pause aborts in-flight chunk requests and stops scheduling. Completed
// chunks are retained; aborted ones return to pending without data loss.
func (c *Coordinator) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.StateTransferring {
		return ErrNotPausable
	}
	c.pauseRequested = true
	if c.roundCancel != nil {
		c.roundCancel()
	}
	return nil
}

// Resume restarts a paused transfer. The server's missing-chunk list is
// the authoritative work set, not local state.
func (c *Coordinator) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != types.StatePaused {
		return ErrNotResumable
	}
	if c.resumeCh != nil {
		select {
		case c.resumeCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Cancel aborts the transfer and discards the remote session. Terminal;
// a cancelled transfer cannot resume.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsTerminal() {
		return ErrAlreadyTerminal
	}
	c.cancelRequested = true
	if c.roundCancel != nil {
		c.roundCancel()
	}
	if c.resumeCh != nil {
		select {
		case c.resumeCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run drives the transfer to a terminal state. It blocks until the
// transfer completes, fails, or is cancelled; Pause suspends it until
// Resume or Cancel. Cancelling ctx is treated as Cancel.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	defer c.bus.close()
	defer close(c.done)

	if err := c.negotiate(ctx); err != nil {
		// Negotiation failure: the transfer never leaves initiating, so
		// there is no partial state to clean up.
		res := &Result{State: types.StateFailed, Err: err}
		c.finish(res, "session negotiation failed")
		return res, err
	}

	if c.cancelRequested {
		return c.finishCancelled(), nil
	}

	c.agg = progress.New(c.session.TotalBytes)
	c.agg.Start()
	c.logger.Info("transfer started",
		zap.Int64("total_bytes", c.session.TotalBytes),
		zap.Int64("chunk_size", c.session.ChunkSize),
		zap.Int("total_chunks", c.session.TotalChunks),
		zap.Int("concurrency", c.concurrency))

	c.setState(types.StateTransferring, "")

	for {
		outcome := c.transferRound(ctx, c.session.incompleteChunks())

		c.mu.Lock()
		cancelRequested := c.cancelRequested
		pauseRequested := c.pauseRequested
		c.pauseRequested = false
		c.mu.Unlock()

		switch {
		case cancelRequested || ctx.Err() != nil:
			return c.finishCancelled(), nil

		case outcome.failed:
			err := outcome.fatalErr
			if err == nil {
				err = fmt.Errorf("chunks %v exhausted retries", c.session.failedChunks())
			}
			res := &Result{State: types.StateFailed, FailedChunks: c.session.failedChunks(), Err: err}
			c.session.resetInFlight()
			_ = c.session.setState(types.StateFailed)
			c.finish(res, err.Error())
			return res, err

		case pauseRequested:
			if err := c.pauseAndAwaitResume(ctx); err != nil {
				res := &Result{State: types.StateFailed, Err: err}
				_ = c.session.setState(types.StateFailed)
				c.finish(res, err.Error())
				return res, err
			}
			c.mu.Lock()
			cancelled := c.cancelRequested
			c.mu.Unlock()
			if cancelled || ctx.Err() != nil {
				return c.finishCancelled(), nil
			}
			// Back to transferring with the reconciled work set.

		case c.session.allCompleted():
			return c.finalize(ctx)

		default:
			// A round ended without pause, cancel, or failure but work
			// remains; should not happen, re-run the remainder.
			c.logger.Warn("round ended with work remaining",
				zap.Int("remaining", len(c.session.incompleteChunks())))
		}
	}
}

// negotiate opens the remote session and builds the local mirror.
func (c *Coordinator) negotiate(ctx context.Context) error {
	switch c.direction {
	case types.DirectionUpload:
		init, err := c.endpoint.InitiateUpload(ctx, c.upload.Name, c.upload.ParentID, c.upload.Size)
		if err != nil {
			return fmt.Errorf("initiate upload: %w", err)
		}
		sess, err := newSession(init.SessionID, "", c.upload.Name, c.upload.Size, init.ChunkSize, init.TotalChunks)
		if err != nil {
			return fmt.Errorf("initiate upload: %w", err)
		}
		c.mu.Lock()
		c.session = sess
		c.mu.Unlock()

	case types.DirectionDownload:
		init, err := c.endpoint.InitiateDownload(ctx, c.resourceID)
		if err != nil {
			return fmt.Errorf("initiate download: %w", err)
		}
		sess, err := newSession(init.SessionID, c.resourceID, init.FileName, init.TotalBytes, init.ChunkSize, init.TotalChunks)
		if err != nil {
			return fmt.Errorf("initiate download: %w", err)
		}
		c.mu.Lock()
		c.session = sess
		c.mu.Unlock()
		c.buffers = make([][]byte, init.TotalChunks)
	}

	if c.concurrency == 0 {
		c.concurrency = ConcurrencyFor(c.session.TotalBytes, c.session.TotalChunks)
	} else {
		c.concurrency = clamp(c.concurrency, MinConcurrent, MaxConcurrent)
	}
	return nil
}

// transferRound schedules workers for the given chunk indices and applies
// their reports until all workers exit. Any chunk failure aborts the
// round's siblings immediately.
func (c *Coordinator) transferRound(ctx context.Context, indices []int) roundOutcome {
	if len(indices) == 0 {
		return roundOutcome{}
	}

	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.roundCancel = cancel
	// Pause/Cancel may have raced ahead of the round starting.
	if c.pauseRequested || c.cancelRequested {
		cancel()
	}
	c.mu.Unlock()

	sem := NewSemaphore(c.concurrency)
	reports := make(chan workerReport, c.concurrency*2)

	var wg sync.WaitGroup
	for _, index := range indices {
		start, end := c.session.ChunkRange(index)
		task := chunkTask{index: index, start: start, end: end}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(roundCtx); err != nil {
				// Never started; the chunk stays pending.
				return
			}
			defer sem.Release()

			w := &worker{
				endpoint:  c.endpoint,
				policy:    c.policy,
				direction: c.direction,
				sessionID: c.session.ID,
				log:       c.logger,
			}
			if c.upload != nil {
				w.source = c.upload.Content
			}
			w.run(roundCtx, task, reports)
		}()
	}

	go func() {
		wg.Wait()
		close(reports)
	}()

	var outcome roundOutcome
	for rep := range reports {
		c.applyReport(rep)
		if rep.kind == reportFailed {
			outcome.failed = true
			if rep.fatal && outcome.fatalErr == nil {
				outcome.fatalErr = rep.err
			}
			// Abort siblings: a failed chunk fails the whole transfer,
			// so letting the rest finish naturally only wastes work.
			cancel()
		}
	}

	c.mu.Lock()
	c.roundCancel = nil
	c.mu.Unlock()

	return outcome
}

// applyReport is the single writer of session chunk state. Reports
// arriving after a terminal state are ignored so late stragglers from
// just-aborted requests cannot resurrect a finished session.
func (c *Coordinator) applyReport(rep workerReport) {
	if c.session.State().IsTerminal() {
		return
	}

	switch rep.kind {
	case reportStarted:
		if err := c.session.setChunk(rep.index, types.ChunkInFlight); err != nil {
			c.logger.Warn("dropping worker report", zap.Error(err))
			return
		}
		c.publishChunk(rep.index, types.ChunkInFlight, rep.attempt, 0, 0)

	case reportRetrying:
		// The chunk stays in-flight; the attempt counter carries the news.
		c.publishChunk(rep.index, types.ChunkInFlight, rep.attempt, 0, 0)

	case reportCompleted:
		if err := c.session.setChunk(rep.index, types.ChunkCompleted); err != nil {
			c.logger.Warn("dropping worker report", zap.Error(err))
			return
		}
		if c.direction == types.DirectionDownload {
			c.buffers[rep.index] = rep.data
		}
		c.publishChunk(rep.index, types.ChunkCompleted, rep.attempt, rep.size, rep.elapsed)
		c.publishProgress(c.agg.OnChunk(rep.size, c.session.TransferredBytes()))

	case reportAborted:
		if c.session.ChunkStatus(rep.index) == types.ChunkInFlight {
			_ = c.session.setChunk(rep.index, types.ChunkPending)
			c.publishChunk(rep.index, types.ChunkPending, rep.attempt, 0, 0)
		}

	case reportFailed:
		if err := c.session.setChunk(rep.index, types.ChunkFailed); err != nil {
			c.logger.Warn("dropping worker report", zap.Error(err))
			return
		}
		c.publishChunk(rep.index, types.ChunkFailed, rep.attempt, 0, 0)
	}
}

// pauseAndAwaitResume parks the transfer until Resume or Cancel, then
// reconciles local chunk state against the server's authoritative view.
func (c *Coordinator) pauseAndAwaitResume(ctx context.Context) error {
	c.session.resetInFlight()
	if err := c.session.setState(types.StatePaused); err != nil {
		return err
	}
	c.agg.Pause()

	resumeCh := make(chan struct{}, 1)
	c.mu.Lock()
	c.state = types.StatePaused
	c.resumeCh = resumeCh
	c.mu.Unlock()

	if err := c.endpoint.PauseSession(ctx, c.session.ID); err != nil {
		c.logger.Warn("remote pause failed", zap.Error(err))
	}
	c.publishState(types.StatePaused, "")
	c.logger.Info("transfer paused",
		zap.Int64("transferred_bytes", c.session.TransferredBytes()))

	select {
	case <-resumeCh:
	case <-ctx.Done():
		return nil // treated as cancel by the caller
	}

	c.mu.Lock()
	cancelled := c.cancelRequested
	c.resumeCh = nil
	c.mu.Unlock()
	if cancelled {
		return nil
	}

	info, err := c.endpoint.ResumeSession(ctx, c.session.ID)
	if err != nil {
		return fmt.Errorf("resume session: %w", err)
	}
	c.reconcile(info.MissingChunks)

	if err := c.session.setState(types.StateTransferring); err != nil {
		return err
	}
	c.agg.Resume()
	c.setState(types.StateTransferring, "")
	c.logger.Info("transfer resumed", zap.Int("missing_chunks", len(info.MissingChunks)))
	return nil
}

// reconcile aligns local chunk state with the server's missing-chunk
// list. The server is the source of truth for what it durably received:
// a locally-completed chunk the server reports missing is re-transferred,
// and for uploads a locally-incomplete chunk the server holds is not
// re-sent. Downloads keep locally-held bytes regardless, since the data
// already crossed the wire.
func (c *Coordinator) reconcile(missingChunks []int) {
	missing := make(map[int]bool, len(missingChunks))
	for _, index := range missingChunks {
		missing[index] = true
	}

	for index := 0; index < c.session.TotalChunks; index++ {
		completed := c.session.ChunkStatus(index) == types.ChunkCompleted

		if missing[index] && completed {
			if c.direction == types.DirectionDownload && c.buffers[index] != nil {
				continue // bytes in hand beat server bookkeeping
			}
			c.session.reopenChunk(index)
			c.publishChunk(index, types.ChunkPending, 0, 0, 0)
			c.logger.Warn("server lost a completed chunk, re-transferring",
				zap.Int("chunk", index))
			continue
		}

		if !missing[index] && !completed && c.direction == types.DirectionUpload {
			// The server durably received a chunk whose ack we lost.
			c.session.completeFromServer(index)
			c.publishChunk(index, types.ChunkCompleted, 0, c.session.ChunkLen(index), 0)
			c.publishProgress(c.agg.OnChunk(c.session.ChunkLen(index), c.session.TransferredBytes()))
		}
	}
}

// finalize completes the transfer after every chunk reports completed:
// uploads submit the manifest, downloads assemble the blob in index order.
func (c *Coordinator) finalize(ctx context.Context) (*Result, error) {
	switch c.direction {
	case types.DirectionUpload:
		manifest := remote.Manifest{
			TotalChunks: c.session.TotalChunks,
			TotalBytes:  c.session.TotalBytes,
		}
		if c.checksum {
			sum, err := c.contentChecksum()
			if err != nil {
				return c.failFinalize(fmt.Errorf("checksum: %w", err))
			}
			manifest.Checksum = sum
		}

		meta, err := c.endpoint.CompleteUpload(ctx, c.session.ID, manifest)
		if err != nil {
			// Integrity gate: all chunks landed but the server rejected
			// the assembled object. Not recoverable by chunk retry.
			return c.failFinalize(fmt.Errorf("complete upload: %w", err))
		}

		res := &Result{State: types.StateCompleted, Meta: meta}
		_ = c.session.setState(types.StateCompleted)
		c.finish(res, "")
		return res, nil

	default:
		blob := make([]byte, 0, c.session.TotalBytes)
		for index := 0; index < c.session.TotalChunks; index++ {
			blob = append(blob, c.buffers[index]...)
		}
		if int64(len(blob)) != c.session.TotalBytes {
			return c.failFinalize(fmt.Errorf("assembled %d bytes, expected %d", len(blob), c.session.TotalBytes))
		}

		res := &Result{State: types.StateCompleted, Blob: blob}
		_ = c.session.setState(types.StateCompleted)
		c.buffers = nil
		c.finish(res, "")
		return res, nil
	}
}

func (c *Coordinator) failFinalize(err error) (*Result, error) {
	res := &Result{State: types.StateFailed, Err: err}
	_ = c.session.setState(types.StateFailed)
	c.finish(res, err.Error())
	return res, err
}

// finishCancelled tears down the transfer: aborts are already done, the
// remote session is discarded, and chunk buffers are released.
func (c *Coordinator) finishCancelled() *Result {
	// Best-effort: the transfer is over locally regardless of whether
	// the discard reaches the server.
	cancelCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if c.session != nil {
		if err := c.endpoint.CancelSession(cancelCtx, c.session.ID); err != nil {
			c.logger.Warn("remote session discard failed", zap.Error(err))
		}
		c.session.resetInFlight()
		_ = c.session.setState(types.StateCancelled)
	}
	c.buffers = nil

	res := &Result{State: types.StateCancelled}
	c.finish(res, "cancelled by caller")
	return res
}

// finish records the terminal result and publishes the terminal event.
func (c *Coordinator) finish(res *Result, reason string) {
	c.mu.Lock()
	c.state = res.State
	c.result = res
	c.mu.Unlock()

	ev := types.TransferEvent{
		Type:         types.EventTypeState,
		State:        res.State,
		Reason:       reason,
		FailedChunks: res.FailedChunks,
	}
	c.publish(ev)

	switch res.State {
	case types.StateCompleted:
		c.logger.Info("transfer completed",
			zap.Int64("total_bytes", c.totalBytes()))
	case types.StateCancelled:
		c.logger.Info("transfer cancelled")
	default:
		c.logger.Error("transfer failed", zap.Error(res.Err))
	}
}

func (c *Coordinator) totalBytes() int64 {
	if c.session == nil {
		return 0
	}
	return c.session.TotalBytes
}

// setState updates the control-surface mirror and publishes a state event.
// Run-loop only.
func (c *Coordinator) setState(state types.TransferState, reason string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.publishState(state, reason)
}

func (c *Coordinator) publishState(state types.TransferState, reason string) {
	c.publish(types.TransferEvent{Type: types.EventTypeState, State: state, Reason: reason})
}

func (c *Coordinator) publishChunk(index int, status types.ChunkState, attempt int, size int64, elapsed time.Duration) {
	c.publish(types.TransferEvent{
		Type:  types.EventTypeChunk,
		State: c.session.State(),
		Chunk: &types.ChunkEvent{
			Index:     index,
			Status:    status,
			Attempt:   attempt,
			Bytes:     size,
			ElapsedMs: elapsed.Milliseconds(),
		},
	})
}

func (c *Coordinator) publishProgress(snap types.ProgressSnapshot) {
	c.publish(types.TransferEvent{
		Type:     types.EventTypeProgress,
		State:    c.session.State(),
		Progress: &snap,
	})
}

// publish stamps identity, sequence, and timestamp. Run-loop only, so
// seq needs no synchronization.
func (c *Coordinator) publish(ev types.TransferEvent) {
	c.seq++
	ev.TransferID = c.id
	ev.Seq = c.seq
	ev.Direction = c.direction
	ev.Ts = time.Now().UTC().Format(time.RFC3339Nano)
	c.bus.publish(ev)
}

// contentChecksum streams the upload content through SHA-256.
func (c *Coordinator) contentChecksum() (string, error) {
	h := sha256.New()
	r := io.NewSectionReader(c.upload.Content, 0, c.upload.Size)
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
