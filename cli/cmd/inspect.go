package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/journal"
	"github.com/pithecene-io/ferry/types"
)

// InspectCommand returns the `ferry inspect` command.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Summarize a transfer event journal",
		ArgsUsage: "<journal-file>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "events",
				Usage: "Print every journal event instead of the summary",
			},
		},
		Action: inspectAction,
	}
}

// journalSummary is the digest of one transfer journal.
type journalSummary struct {
	TransferID       string `json:"transfer_id"`
	Direction        string `json:"direction"`
	FinalState       string `json:"final_state"`
	Events           int    `json:"events"`
	ChunksCompleted  int    `json:"chunks_completed"`
	Retries          int    `json:"retries"`
	TransferredBytes int64  `json:"transferred_bytes"`
	DurationMs       int64  `json:"duration_ms"`
	Reason           string `json:"reason,omitempty"`
	FailedChunks     []int  `json:"failed_chunks,omitempty"`
	Truncated        bool   `json:"truncated,omitempty"`
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ferry inspect [options] <journal-file>", exitUsageError)
	}
	path := c.Args().First()

	events, err := journal.ReadFile(path)
	truncated := false
	if err != nil {
		// A torn final frame still leaves a usable prefix; anything
		// else is a real read failure.
		if !journal.IsTruncated(err) {
			return cli.Exit(err.Error(), exitUsageError)
		}
		truncated = true
	}
	if len(events) == 0 {
		return cli.Exit("journal contains no events", exitUsageError)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if c.Bool("events") {
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return cli.Exit(err.Error(), exitUsageError)
			}
		}
		return nil
	}

	if err := enc.Encode(summarize(events, truncated)); err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}
	return nil
}

// summarize folds a journal's event stream into a digest.
func summarize(events []types.TransferEvent, truncated bool) journalSummary {
	first := events[0]
	last := events[len(events)-1]

	s := journalSummary{
		TransferID: first.TransferID,
		Direction:  string(first.Direction),
		FinalState: string(last.State),
		Events:     len(events),
		Truncated:  truncated,
	}

	for _, ev := range events {
		switch ev.Type {
		case types.EventTypeChunk:
			if ev.Chunk == nil {
				continue
			}
			switch ev.Chunk.Status {
			case types.ChunkCompleted:
				s.ChunksCompleted++
			case types.ChunkInFlight:
				if ev.Chunk.Attempt > 0 {
					s.Retries++
				}
			}
		case types.EventTypeProgress:
			if ev.Progress != nil {
				s.TransferredBytes = ev.Progress.TransferredBytes
			}
		case types.EventTypeState:
			if ev.Reason != "" {
				s.Reason = ev.Reason
			}
			if len(ev.FailedChunks) > 0 {
				s.FailedChunks = ev.FailedChunks
			}
		}
	}

	s.DurationMs = spanMs(first.Ts, last.Ts)
	return s
}

// spanMs returns the wall time between two event timestamps, or 0 when
// either fails to parse.
func spanMs(from, to string) int64 {
	start, err := time.Parse(time.RFC3339Nano, from)
	if err != nil {
		return 0
	}
	end, err := time.Parse(time.RFC3339Nano, to)
	if err != nil {
		return 0
	}
	ms := end.Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
