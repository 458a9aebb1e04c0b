package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ferry/adapter"
	"github.com/pithecene-io/ferry/adapter/redis"
	"github.com/pithecene-io/ferry/adapter/webhook"
	"github.com/pithecene-io/ferry/cli/config"
	"github.com/pithecene-io/ferry/cli/tui"
	"github.com/pithecene-io/ferry/journal"
	"github.com/pithecene-io/ferry/log"
	"github.com/pithecene-io/ferry/remote"
	"github.com/pithecene-io/ferry/remote/s3"
	"github.com/pithecene-io/ferry/retry"
	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
)

// defaultConfigFile is picked up from the working directory when no
// --config flag is given.
const defaultConfigFile = "ferry.yaml"

// loadConfig resolves the config file: explicit flag, then ferry.yaml
// in the working directory, then empty defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err != nil {
			return &config.Config{}, nil
		}
		path = defaultConfigFile
	}
	return config.Load(path)
}

// buildEndpoint constructs the remote endpoint from config and flags.
func buildEndpoint(ctx context.Context, cfg *config.Config, c *cli.Context) (remote.Endpoint, error) {
	if cfg.Remote.Backend == "s3" {
		return s3.New(ctx, s3.Config{
			Bucket:       cfg.Remote.S3.Bucket,
			Prefix:       cfg.Remote.S3.Prefix,
			Region:       cfg.Remote.S3.Region,
			Endpoint:     cfg.Remote.S3.Endpoint,
			UsePathStyle: cfg.Remote.S3.UsePathStyle,
			ChunkSize:    cfg.Remote.S3.ChunkSize,
		})
	}

	baseURL := c.String("base-url")
	if baseURL == "" {
		baseURL = cfg.Remote.BaseURL
	}
	if baseURL == "" {
		return nil, errors.New("a remote base URL is required (--base-url or remote.base_url)")
	}

	httpCfg := remote.HTTPConfig{BaseURL: baseURL, Headers: cfg.Remote.Headers}
	if cfg.Remote.Timeout.Duration > 0 {
		httpCfg.Client = &http.Client{Timeout: cfg.Remote.Timeout.Duration}
	}
	return remote.NewHTTPEndpoint(httpCfg)
}

// buildPolicy applies config overrides to the default retry policy.
func buildPolicy(cfg *config.Config) *retry.Policy {
	p := retry.NewPolicy()
	if cfg.Retry.MaxRetries != nil {
		p.MaxRetries = *cfg.Retry.MaxRetries
	}
	if cfg.Retry.Base.Duration > 0 {
		p.Base = cfg.Retry.Base.Duration
	}
	if cfg.Retry.Cap.Duration > 0 {
		p.Cap = cfg.Retry.Cap.Duration
	}
	if cfg.Retry.Multiplier > 0 {
		p.Multiplier = cfg.Retry.Multiplier
	}
	return p
}

// buildAdapter constructs the notification adapter, or nil when none is
// configured.
func buildAdapter(cfg *config.Config) (adapter.Adapter, error) {
	switch cfg.Adapter.Type {
	case "":
		return nil, nil
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     cfg.Adapter.URL,
			Headers: cfg.Adapter.Headers,
			Timeout: cfg.Adapter.Timeout.Duration,
		})
	case "redis":
		return redis.New(redis.Config{
			URL:     cfg.Adapter.URL,
			Channel: cfg.Adapter.Channel,
			Timeout: cfg.Adapter.Timeout.Duration,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", cfg.Adapter.Type)
	}
}

// transferOptions builds coordinator options from flags and config.
func transferOptions(c *cli.Context, cfg *config.Config) transfer.Options {
	opts := transfer.Options{
		Policy:      buildPolicy(cfg),
		Concurrency: cfg.Transfer.Concurrency,
		Checksum:    cfg.Transfer.Checksum,
	}
	if n := c.Int("concurrency"); n > 0 {
		opts.Concurrency = n
	}
	if c.Bool("progress") {
		// The structured log would fight the TUI for the terminal.
		opts.Logger = log.Nop()
	}
	return opts
}

// runTransfer drives a coordinator to a terminal state with signal
// handling, optional journaling, optional TUI, and adapter notification.
// A nil Result means setup failed before the transfer started.
func runTransfer(c *cli.Context, cfg *config.Config, coord *transfer.Coordinator) (*transfer.Result, error) {
	notify, err := buildAdapter(cfg)
	if err != nil {
		return nil, err
	}

	reg := transfer.NewRegistry()
	if err := reg.Add(coord); err != nil {
		return nil, err
	}
	defer reg.Remove(coord.ID())

	journalDone, journalPath, err := startJournal(c, cfg, coord)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			_ = reg.Cancel(coord.ID())
		case <-coord.Done():
		}
	}()

	started := time.Now()
	res, runErr := runWithView(ctx, c, coord)
	duration := time.Since(started)

	if journalDone != nil {
		if err := <-journalDone; err != nil {
			fmt.Fprintf(os.Stderr, "warning: journal write failed: %v\n", err)
		} else if !c.Bool("quiet") {
			fmt.Fprintf(os.Stderr, "journal: %s\n", journalPath)
		}
	}

	if notify != nil {
		publishCompletion(notify, coord, res, duration)
	}

	return res, runErr
}

// runWithView runs the coordinator, attaching the TUI when requested.
func runWithView(ctx context.Context, c *cli.Context, coord *transfer.Coordinator) (*transfer.Result, error) {
	if !c.Bool("progress") {
		return coord.Run(ctx)
	}

	events, cancelSub := coord.Subscribe()
	defer cancelSub()

	done := make(chan struct{})
	var res *transfer.Result
	var runErr error
	go func() {
		defer close(done)
		res, runErr = coord.Run(ctx)
	}()

	meta := tui.Meta{
		TransferID: coord.ID(),
		Direction:  coord.Direction(),
		FileName:   coord.FileName(),
	}
	controls := tui.Controls{Pause: coord.Pause, Resume: coord.Resume, Cancel: coord.Cancel}
	if err := tui.Run(meta, events, controls); err != nil {
		fmt.Fprintf(os.Stderr, "warning: progress view failed: %v\n", err)
	}

	<-done
	return res, runErr
}

// startJournal wires a journal writer onto the transfer's event stream.
// Returns a nil channel when journaling is disabled.
func startJournal(c *cli.Context, cfg *config.Config, coord *transfer.Coordinator) (<-chan error, string, error) {
	dir := c.String("journal-dir")
	if dir == "" {
		dir = cfg.Journal.Dir
	}
	if dir == "" {
		return nil, "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create journal dir: %w", err)
	}
	path := filepath.Join(dir, coord.ID()+".journal")
	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("create journal: %w", err)
	}

	events, _ := coord.Subscribe()
	done := make(chan error, 1)
	go func() {
		err := journal.NewWriter(f).Drain(events)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		done <- err
	}()
	return done, path, nil
}

// publishCompletion sends the terminal outcome to the notification
// adapter. Failures are warnings; the transfer outcome stands.
func publishCompletion(notify adapter.Adapter, coord *transfer.Coordinator, res *transfer.Result, duration time.Duration) {
	defer func() { _ = notify.Close() }()
	if res == nil {
		return
	}

	ev := &adapter.TransferCompletedEvent{
		EventType:    adapter.EventTypeTransferCompleted,
		TransferID:   coord.ID(),
		Direction:    string(coord.Direction()),
		FileName:     coord.FileName(),
		Outcome:      string(res.State),
		DurationMs:   duration.Milliseconds(),
		FailedChunks: res.FailedChunks,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	switch {
	case res.Meta != nil:
		ev.ResourceID = res.Meta.ResourceID
		ev.Bytes = res.Meta.Size
		ev.Checksum = res.Meta.Checksum
	case res.Blob != nil:
		ev.Bytes = int64(len(res.Blob))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := notify.Publish(ctx, ev); err != nil {
		fmt.Fprintf(os.Stderr, "warning: completion notification failed: %v\n", err)
	}
}

// exitForState maps a terminal transfer state to a process exit code.
func exitForState(state types.TransferState) int {
	switch state {
	case types.StateCompleted:
		return exitSuccess
	case types.StateCancelled:
		return exitCancelled
	default:
		return exitTransferFailed
	}
}
