package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/transfer"
)

// UploadCommand returns the `ferry upload` command.
func UploadCommand() *cli.Command {
	flags := append(TransferFlags(),
		&cli.StringFlag{
			Name:  "name",
			Usage: "Remote resource name (default: file base name)",
		},
		&cli.StringFlag{
			Name:  "parent-id",
			Usage: "Destination folder id on the remote drive",
		},
		&cli.BoolFlag{
			Name:  "checksum",
			Usage: "Include a SHA-256 checksum in the completion manifest",
		},
	)

	return &cli.Command{
		Name:      "upload",
		Usage:     "Upload a file in chunks to the remote drive",
		ArgsUsage: "<file>",
		Flags:     flags,
		Action:    uploadAction,
	}
}

func uploadAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ferry upload [options] <file>", exitUsageError)
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}
	if info.IsDir() {
		return cli.Exit(fmt.Sprintf("%s is a directory", path), exitUsageError)
	}

	name := c.String("name")
	if name == "" {
		name = filepath.Base(path)
	}

	endpoint, err := buildEndpoint(c.Context, cfg, c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	opts := transferOptions(c, cfg)
	if c.Bool("checksum") {
		opts.Checksum = true
	}

	coord := transfer.NewUpload(endpoint, transfer.UploadRequest{
		Name:     name,
		ParentID: c.String("parent-id"),
		Size:     info.Size(),
		Content:  f,
	}, opts)

	res, err := runTransfer(c, cfg, coord)
	if res == nil {
		return cli.Exit(err.Error(), exitUsageError)
	}

	if !c.Bool("quiet") {
		printUploadResult(res)
	}
	return exitForResult(res)
}

func printUploadResult(res *transfer.Result) {
	fmt.Printf("state: %s\n", res.State)
	if res.Meta != nil {
		fmt.Printf("resource: %s\n", res.Meta.ResourceID)
		fmt.Printf("bytes: %d\n", res.Meta.Size)
		if res.Meta.Checksum != "" {
			fmt.Printf("checksum: %s\n", res.Meta.Checksum)
		}
	}
	if len(res.FailedChunks) > 0 {
		fmt.Printf("failed chunks: %v\n", res.FailedChunks)
	}
}

// exitForResult converts a terminal result into the command's error
// return, carrying the process exit code.
func exitForResult(res *transfer.Result) error {
	code := exitForState(res.State)
	if code == exitSuccess {
		return nil
	}
	msg := fmt.Sprintf("transfer %s", res.State)
	if res.Err != nil {
		msg = fmt.Sprintf("transfer %s: %v", res.State, res.Err)
	}
	return cli.Exit(msg, code)
}
