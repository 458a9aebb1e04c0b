package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/pithecene-io/ferry/types"
)

func sampleEvents() []types.TransferEvent {
	return []types.TransferEvent{
		{
			TransferID: "transfer-001",
			Seq:        1,
			Type:       types.EventTypeState,
			Ts:         "2026-08-23T12:00:00Z",
			Direction:  types.DirectionUpload,
			State:      types.StateTransferring,
		},
		{
			TransferID: "transfer-001",
			Seq:        2,
			Type:       types.EventTypeChunk,
			Ts:         "2026-08-23T12:00:01Z",
			Direction:  types.DirectionUpload,
			State:      types.StateTransferring,
			Chunk: &types.ChunkEvent{
				Index:     0,
				Status:    types.ChunkCompleted,
				Attempt:   1,
				Bytes:     1048576,
				ElapsedMs: 230,
			},
		},
		{
			TransferID: "transfer-001",
			Seq:        3,
			Type:       types.EventTypeProgress,
			Ts:         "2026-08-23T12:00:01Z",
			Direction:  types.DirectionUpload,
			State:      types.StateTransferring,
			Progress: &types.ProgressSnapshot{
				TransferredBytes: 1048576,
				TotalBytes:       10485760,
				InstantSpeed:     4558766,
				AverageSpeed:     4558766,
				Percentage:       10,
				ETASeconds:       2.07,
			},
		},
		{
			TransferID: "transfer-001",
			Seq:        4,
			Type:       types.EventTypeState,
			Ts:         "2026-08-23T12:00:05Z",
			Direction:  types.DirectionUpload,
			State:      types.StateCompleted,
		},
	}
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	events := sampleEvents()
	for i := range events {
		if err := w.Append(&events[i]); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	got, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("decoded %d events, want %d", len(got), len(events))
	}

	for i, ev := range got {
		want := events[i]
		if ev.TransferID != want.TransferID || ev.Seq != want.Seq || ev.Type != want.Type || ev.State != want.State {
			t.Fatalf("event %d = %+v, want %+v", i, ev, want)
		}
	}

	chunk := got[1].Chunk
	if chunk == nil || chunk.Index != 0 || chunk.Bytes != 1048576 || chunk.Status != types.ChunkCompleted {
		t.Fatalf("chunk payload = %+v", chunk)
	}
	prog := got[2].Progress
	if prog == nil || prog.TransferredBytes != 1048576 || prog.Percentage != 10 {
		t.Fatalf("progress payload = %+v", prog)
	}
	if !got[3].IsTerminal() {
		t.Fatal("final event should be terminal")
	}
}

func TestEmptyJournal(t *testing.T) {
	got, err := NewReader(bytes.NewReader(nil)).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("decoded %d events from empty journal", len(got))
	}
}

func TestTruncatedPayload(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	events := sampleEvents()
	for i := range events[:2] {
		if err := w.Append(&events[i]); err != nil {
			t.Fatal(err)
		}
	}

	// Cut the stream mid-way through the second frame.
	data := buf.Bytes()
	cut := data[:len(data)-5]

	got, err := NewReader(bytes.NewReader(cut)).ReadAll()
	if err == nil {
		t.Fatal("expected truncation error")
	}
	if !IsTruncated(err) {
		t.Fatalf("IsTruncated(%v) = false", err)
	}
	// The intact first event survives.
	if len(got) != 1 || got[0].Seq != 1 {
		t.Fatalf("got %d events before the cut, want 1", len(got))
	}
}

func TestTruncatedLengthPrefix(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ev := sampleEvents()[0]
	if err := w.Append(&ev); err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte{0x00, 0x00}) // half a length prefix

	got, err := NewReader(&buf).ReadAll()
	if !IsTruncated(err) {
		t.Fatalf("IsTruncated(%v) = false", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], MaxPayloadSize+1)

	_, err := NewReader(bytes.NewReader(lengthBuf[:])).Next()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Fatalf("err = %v, want FrameErrorTooLarge", err)
	}
}

func TestGarbagePayloadRejected(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0xc1, 0xff, 0xff} // 0xc1 is never valid msgpack
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	buf.Write(lengthBuf[:])
	buf.Write(payload)

	_, err := NewReader(&buf).Next()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
		t.Fatalf("err = %v, want FrameErrorDecode", err)
	}
}

func TestNextReturnsCleanEOF(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	ev := sampleEvents()[0]
	if err := w.Append(&ev); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf)
	if _, err := r.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("Next at end = %v, want io.EOF", err)
	}
}

func TestDrainWritesUntilChannelCloses(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	events := sampleEvents()
	ch := make(chan types.TransferEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)

	if err := w.Drain(ch); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	got, err := NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("decoded %d events, want %d", len(got), len(events))
	}
}
