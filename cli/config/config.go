package config

import (
	"fmt"
	"time"
)

// Config represents a ferry.yaml configuration file.
// All values are optional and act as defaults for ferry command flags.
// CLI flags always override config values.
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Retry    RetryConfig    `yaml:"retry"`
	Transfer TransferConfig `yaml:"transfer"`
	Journal  JournalConfig  `yaml:"journal"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

// RemoteConfig selects and configures the remote endpoint.
type RemoteConfig struct {
	// Backend is "http" (default) or "s3".
	Backend string            `yaml:"backend"`
	BaseURL string            `yaml:"base_url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`

	S3 S3Config `yaml:"s3,omitempty"`
}

// S3Config holds S3 backend settings.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
	ChunkSize    int64  `yaml:"chunk_size"`
}

// RetryConfig overrides the chunk retry policy defaults.
type RetryConfig struct {
	MaxRetries *int     `yaml:"max_retries,omitempty"`
	Base       Duration `yaml:"base,omitempty"`
	Cap        Duration `yaml:"cap,omitempty"`
	Multiplier float64  `yaml:"multiplier,omitempty"`
}

// TransferConfig holds transfer defaults from the config file.
type TransferConfig struct {
	// Concurrency forces a worker count instead of sizing by file size.
	Concurrency int `yaml:"concurrency,omitempty"`
	// Checksum includes a SHA-256 in upload manifests.
	Checksum bool `yaml:"checksum,omitempty"`
}

// JournalConfig controls event journaling.
type JournalConfig struct {
	// Dir is the directory for per-transfer journal files. Empty
	// disables journaling.
	Dir string `yaml:"dir,omitempty"`
}

// AdapterConfig holds notification adapter defaults from the config file.
type AdapterConfig struct {
	// Type is "webhook" or "redis". Empty disables notifications.
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks cross-field constraints that YAML decoding cannot.
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case "", "http":
		// base_url may still come from a flag; checked at command level.
	case "s3":
		if c.Remote.S3.Bucket == "" {
			return fmt.Errorf("remote.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown remote backend %q (want http or s3)", c.Remote.Backend)
	}

	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		return fmt.Errorf("unknown adapter type %q (want webhook or redis)", c.Adapter.Type)
	}

	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", *c.Retry.MaxRetries)
	}
	if c.Transfer.Concurrency < 0 {
		return fmt.Errorf("transfer.concurrency must be >= 0, got %d", c.Transfer.Concurrency)
	}
	return nil
}
