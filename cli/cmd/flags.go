// Package cmd provides CLI commands for the ferry binary.
package cmd

import "github.com/urfave/cli/v2"

// Exit codes for transfer commands.
const (
	exitSuccess        = 0
	exitTransferFailed = 1
	exitUsageError     = 2
	exitCancelled      = 3
)

// Shared flags for transfer commands.
var (
	// ConfigFlag points at a ferry.yaml config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"C"},
		Usage:   "Path to ferry.yaml config file",
	}

	// BaseURLFlag overrides the remote base URL from the config.
	BaseURLFlag = &cli.StringFlag{
		Name:  "base-url",
		Usage: "Remote transfer API base URL (overrides config)",
	}

	// ConcurrencyFlag forces the worker count instead of sizing by file size.
	ConcurrencyFlag = &cli.IntFlag{
		Name:  "concurrency",
		Usage: "Force the parallel chunk request count (0 = size automatically)",
	}

	// JournalDirFlag enables event journaling into the given directory.
	JournalDirFlag = &cli.StringFlag{
		Name:  "journal-dir",
		Usage: "Directory for per-transfer event journals (overrides config)",
	}

	// ProgressFlag enables the interactive progress view.
	ProgressFlag = &cli.BoolFlag{
		Name:  "progress",
		Usage: "Show an interactive progress view",
	}

	// QuietFlag suppresses the result summary.
	QuietFlag = &cli.BoolFlag{
		Name:  "quiet",
		Usage: "Suppress result output",
	}
)

// TransferFlags returns the flags shared by upload and download.
func TransferFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		BaseURLFlag,
		ConcurrencyFlag,
		JournalDirFlag,
		ProgressFlag,
		QuietFlag,
	}
}
