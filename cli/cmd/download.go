package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
)

// DownloadCommand returns the `ferry download` command.
func DownloadCommand() *cli.Command {
	flags := append(TransferFlags(),
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output file path (default: the remote resource name)",
		},
	)

	return &cli.Command{
		Name:      "download",
		Usage:     "Download a resource in chunks from the remote drive",
		ArgsUsage: "<resource-id>",
		Flags:     flags,
		Action:    downloadAction,
	}
}

func downloadAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ferry download [options] <resource-id>", exitUsageError)
	}
	resourceID := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	endpoint, err := buildEndpoint(c.Context, cfg, c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	coord := transfer.NewDownload(endpoint, resourceID, transferOptions(c, cfg))

	res, err := runTransfer(c, cfg, coord)
	if res == nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	if res.State == types.StateCompleted && res.Blob != nil {
		out := c.String("output")
		if out == "" {
			out = coord.FileName()
		}
		if err := os.WriteFile(out, res.Blob, 0o644); err != nil {
			return cli.Exit(fmt.Sprintf("write output: %v", err), exitTransferFailed)
		}
		if !c.Bool("quiet") {
			fmt.Printf("state: %s\n", res.State)
			fmt.Printf("wrote: %s (%d bytes)\n", out, len(res.Blob))
		}
		return nil
	}

	if !c.Bool("quiet") {
		fmt.Printf("state: %s\n", res.State)
		if len(res.FailedChunks) > 0 {
			fmt.Printf("failed chunks: %v\n", res.FailedChunks)
		}
	}
	return exitForResult(res)
}
