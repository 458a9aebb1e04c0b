package types_test

import (
	"testing"

	"github.com/pithecene-io/ferry/types"
)

func TestTransferState_IsTerminal(t *testing.T) {
	terminal := []types.TransferState{types.StateCompleted, types.StateFailed, types.StateCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	live := []types.TransferState{types.StateInitiating, types.StateTransferring, types.StatePaused}
	for _, s := range live {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestTransferState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to types.TransferState
		want     bool
	}{
		{types.StateInitiating, types.StateTransferring, true},
		{types.StateInitiating, types.StateFailed, true},
		{types.StateInitiating, types.StatePaused, false},
		{types.StateTransferring, types.StatePaused, true},
		{types.StateTransferring, types.StateCompleted, true},
		{types.StateTransferring, types.StateFailed, true},
		{types.StateTransferring, types.StateCancelled, true},
		{types.StatePaused, types.StateTransferring, true},
		{types.StatePaused, types.StateCancelled, true},
		{types.StatePaused, types.StateCompleted, false},
		// Terminal states admit nothing.
		{types.StateCompleted, types.StateTransferring, false},
		{types.StateFailed, types.StateTransferring, false},
		{types.StateCancelled, types.StateTransferring, false},
		{types.StateCompleted, types.StateFailed, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestChunkState_CanTransition(t *testing.T) {
	tests := []struct {
		from, to types.ChunkState
		want     bool
	}{
		{types.ChunkPending, types.ChunkInFlight, true},
		{types.ChunkPending, types.ChunkCompleted, false},
		{types.ChunkInFlight, types.ChunkCompleted, true},
		{types.ChunkInFlight, types.ChunkPending, true},
		{types.ChunkInFlight, types.ChunkFailed, true},
		// Completed may only reopen to pending (server-reported loss on resume).
		{types.ChunkCompleted, types.ChunkPending, true},
		{types.ChunkCompleted, types.ChunkInFlight, false},
		{types.ChunkCompleted, types.ChunkFailed, false},
		{types.ChunkFailed, types.ChunkPending, true},
		{types.ChunkFailed, types.ChunkCompleted, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
