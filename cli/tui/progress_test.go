package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/ferry/types"
)

func testMeta() Meta {
	return Meta{
		TransferID: "transfer-001",
		Direction:  types.DirectionUpload,
		FileName:   "report.pdf",
	}
}

func progressEvent(pct float64, transferred, total int64) types.TransferEvent {
	return types.TransferEvent{
		Type:  types.EventTypeProgress,
		State: types.StateTransferring,
		Progress: &types.ProgressSnapshot{
			TransferredBytes: transferred,
			TotalBytes:       total,
			InstantSpeed:     1048576,
			Percentage:       pct,
			ETASeconds:       12,
		},
	}
}

func TestModelAppliesProgressEvents(t *testing.T) {
	m := NewModel(testMeta(), nil, Controls{})

	m.apply(progressEvent(40, 4194304, 10485760))

	view := m.View()
	if !strings.Contains(view, "4.0 MiB / 10.0 MiB") {
		t.Errorf("view missing byte counts:\n%s", view)
	}
	if !strings.Contains(view, "transferring") {
		t.Errorf("view missing state:\n%s", view)
	}
	if !strings.Contains(view, "report.pdf") {
		t.Errorf("view missing file name:\n%s", view)
	}
}

func TestModelCountsChunksAndRetries(t *testing.T) {
	m := NewModel(testMeta(), nil, Controls{})

	m.apply(types.TransferEvent{
		Type:  types.EventTypeChunk,
		State: types.StateTransferring,
		Chunk: &types.ChunkEvent{Index: 0, Status: types.ChunkCompleted},
	})
	m.apply(types.TransferEvent{
		Type:  types.EventTypeChunk,
		State: types.StateTransferring,
		Chunk: &types.ChunkEvent{Index: 1, Status: types.ChunkInFlight, Attempt: 1},
	})

	if m.chunksDone != 1 {
		t.Errorf("chunksDone = %d, want 1", m.chunksDone)
	}
	if m.retries != 1 {
		t.Errorf("retries = %d, want 1", m.retries)
	}
}

func TestModelMarksTerminal(t *testing.T) {
	m := NewModel(testMeta(), nil, Controls{})

	m.apply(types.TransferEvent{
		Type:  types.EventTypeState,
		State: types.StateCompleted,
	})

	if !m.done {
		t.Fatal("terminal event did not mark the model done")
	}
	if !strings.Contains(m.View(), "Press q to quit") {
		t.Error("terminal view missing quit hint")
	}
}

func TestPauseKeyInvokesControl(t *testing.T) {
	var paused bool
	m := NewModel(testMeta(), nil, Controls{
		Pause: func() error { paused = true; return nil },
	})
	m.state = types.StateTransferring

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	m = updated.(Model)

	if !paused {
		t.Fatal("p key did not invoke Pause")
	}
}

func TestQuitOnLiveTransferCancels(t *testing.T) {
	var cancelled bool
	m := NewModel(testMeta(), nil, Controls{
		Cancel: func() error { cancelled = true; return nil },
	})
	m.state = types.StateTransferring

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	m = updated.(Model)

	if !cancelled {
		t.Fatal("q on a live transfer did not cancel it")
	}
	if cmd != nil {
		t.Fatal("q on a live transfer must wait for the terminal event, not quit")
	}
}

func TestEventStreamClosureQuits(t *testing.T) {
	events := make(chan types.TransferEvent)
	close(events)

	m := NewModel(testMeta(), events, Controls{})
	msg := m.Init()()
	if _, ok := msg.(closedMsg); !ok {
		t.Fatalf("msg = %T, want closedMsg", msg)
	}

	updated, cmd := m.Update(msg)
	m = updated.(Model)
	if !m.done {
		t.Fatal("closed stream did not mark model done")
	}
	if cmd == nil {
		t.Fatal("closed stream should quit the program")
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{10485760, "10.0 MiB"},
		{3221225472, "3.00 GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}

	if got := formatETA(-1); got != "--" {
		t.Errorf("formatETA(-1) = %q, want --", got)
	}
	if got := formatETA(125); got != "2m5s" {
		t.Errorf("formatETA(125) = %q, want 2m5s", got)
	}
}
