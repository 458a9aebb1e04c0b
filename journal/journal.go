// Package journal persists transfer event streams as length-prefixed
// msgpack frames, one frame per event. Journals are append-only; the
// inspect command replays them after the fact.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/ferry/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsTruncated reports whether err marks a journal cut off mid-frame,
// the expected shape after a crashed or killed transfer.
func IsTruncated(err error) bool {
	var frameErr *FrameError
	return errors.As(err, &frameErr) && frameErr.Kind == FrameErrorPartial
}

// Writer appends transfer events to a journal stream. Safe for
// concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a journal writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Append encodes the event and writes one frame.
func (w *Writer) Append(ev *types.TransferEvent) error {
	payload, err := msgpack.Marshal(ev)
	if err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "encode event", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}

	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// Drain appends every event from the channel until it closes. The
// first write error stops recording; remaining events are discarded so
// the transfer itself is never stalled by journal I/O.
func (w *Writer) Drain(events <-chan types.TransferEvent) error {
	for ev := range events {
		ev := ev
		if err := w.Append(&ev); err != nil {
			for range events {
			}
			return err
		}
	}
	return nil
}

// Reader decodes transfer events from a journal stream.
type Reader struct {
	r io.Reader
}

// NewReader creates a journal reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next reads one event. Returns io.EOF when the stream ends cleanly on
// a frame boundary; a stream cut off mid-frame yields a FrameError with
// Kind FrameErrorPartial.
func (r *Reader) Next() (*types.TransferEvent, error) {
	var lengthBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r.r, lengthBuf[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "read length prefix", Err: err}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "read payload", Err: err}
	}

	var ev types.TransferEvent
	if err := msgpack.Unmarshal(payload, &ev); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "decode event", Err: err}
	}
	return &ev, nil
}

// ReadAll decodes every remaining event. A truncated final frame is
// tolerated: events decoded before the cut are returned alongside the
// error so a crashed transfer's journal is still inspectable.
func (r *Reader) ReadAll() ([]types.TransferEvent, error) {
	var out []types.TransferEvent
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, *ev)
	}
}

// ReadFile opens and fully decodes a journal file.
func ReadFile(path string) ([]types.TransferEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = f.Close() }()
	return NewReader(f).ReadAll()
}
