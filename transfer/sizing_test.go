package transfer

import "testing"

func TestConcurrencyFor(t *testing.T) {
	tests := []struct {
		name        string
		totalBytes  int64
		totalChunks int
		want        int
	}{
		{"tiny file few chunks", 1 * mib, 1, 2},
		{"small file many chunks", 10 * mib, 10, 2},
		{"small file chunk-heavy", 40 * mib, 40, 4},
		{"small band ceiling clamped to max", 45 * mib, 45, 4},
		{"medium file", 100 * mib, 25, 3},
		{"medium band floor", 60 * mib, 10, 2},
		{"medium band ceiling", 199 * mib, 199, 4},
		{"large file", 500 * mib, 63, 3},
		{"large band capped at three", 1024 * mib, 128, 3},
		{"large band floor", 250 * mib, 32, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConcurrencyFor(tt.totalBytes, tt.totalChunks); got != tt.want {
				t.Fatalf("ConcurrencyFor(%d, %d) = %d, want %d",
					tt.totalBytes, tt.totalChunks, got, tt.want)
			}
		})
	}
}
