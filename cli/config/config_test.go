package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ferry.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, name, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", name, got, want)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	yaml := `remote:
  backend: http
  base_url: https://drive.example.com
  headers:
    Authorization: Bearer token123
  timeout: 30s

retry:
  max_retries: 5
  base: 500ms
  cap: 8s
  multiplier: 2.0

transfer:
  concurrency: 3
  checksum: true

journal:
  dir: /var/log/ferry

adapter:
  type: webhook
  url: https://hooks.example.com/ferry
  headers:
    Authorization: Bearer hook-token
  timeout: 10s
`
	path := writeTemp(t, yaml)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "remote.backend", cfg.Remote.Backend, "http")
	assertEqual(t, "remote.base_url", cfg.Remote.BaseURL, "https://drive.example.com")
	assertEqual(t, "remote.headers", cfg.Remote.Headers["Authorization"], "Bearer token123")
	if cfg.Remote.Timeout.Duration != 30*time.Second {
		t.Errorf("remote.timeout = %v, want 30s", cfg.Remote.Timeout.Duration)
	}

	if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 5 {
		t.Error("expected retry.max_retries=5")
	}
	if cfg.Retry.Base.Duration != 500*time.Millisecond {
		t.Errorf("retry.base = %v, want 500ms", cfg.Retry.Base.Duration)
	}
	if cfg.Retry.Cap.Duration != 8*time.Second {
		t.Errorf("retry.cap = %v, want 8s", cfg.Retry.Cap.Duration)
	}
	if cfg.Retry.Multiplier != 2.0 {
		t.Errorf("retry.multiplier = %v, want 2.0", cfg.Retry.Multiplier)
	}

	if cfg.Transfer.Concurrency != 3 {
		t.Errorf("transfer.concurrency = %d, want 3", cfg.Transfer.Concurrency)
	}
	if !cfg.Transfer.Checksum {
		t.Error("expected transfer.checksum=true")
	}

	assertEqual(t, "journal.dir", cfg.Journal.Dir, "/var/log/ferry")

	assertEqual(t, "adapter.type", cfg.Adapter.Type, "webhook")
	assertEqual(t, "adapter.url", cfg.Adapter.URL, "https://hooks.example.com/ferry")
	if cfg.Adapter.Timeout.Duration != 10*time.Second {
		t.Errorf("adapter.timeout = %v, want 10s", cfg.Adapter.Timeout.Duration)
	}
	if cfg.Adapter.Headers["Authorization"] != "Bearer hook-token" {
		t.Error("expected adapter Authorization header")
	}
}

func TestLoad_S3Backend(t *testing.T) {
	yaml := `remote:
  backend: s3
  s3:
    bucket: my-bucket
    prefix: transfers
    region: eu-central-1
    endpoint: https://minio.internal:9000
    use_path_style: true
    chunk_size: 8388608
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "remote.s3.bucket", cfg.Remote.S3.Bucket, "my-bucket")
	assertEqual(t, "remote.s3.prefix", cfg.Remote.S3.Prefix, "transfers")
	assertEqual(t, "remote.s3.region", cfg.Remote.S3.Region, "eu-central-1")
	if !cfg.Remote.S3.UsePathStyle {
		t.Error("expected use_path_style=true")
	}
	if cfg.Remote.S3.ChunkSize != 8388608 {
		t.Errorf("chunk_size = %d, want 8388608", cfg.Remote.S3.ChunkSize)
	}
}

func TestLoad_S3RequiresBucket(t *testing.T) {
	yaml := `remote:
  backend: s3
`
	_, err := Load(writeTemp(t, yaml))
	if err == nil || !strings.Contains(err.Error(), "bucket") {
		t.Fatalf("expected bucket error, got %v", err)
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	_, err := Load(writeTemp(t, "remote:\n  backend: ftp\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown remote backend") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestLoad_UnknownAdapterType(t *testing.T) {
	_, err := Load(writeTemp(t, "adapter:\n  type: kafka\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown adapter type") {
		t.Fatalf("expected adapter type error, got %v", err)
	}
}

func TestLoad_NegativeRetriesRejected(t *testing.T) {
	_, err := Load(writeTemp(t, "retry:\n  max_retries: -1\n"))
	if err == nil {
		t.Fatal("expected error for negative max_retries")
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	cfg, err := Load(writeTemp(t, ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Remote.BaseURL != "" {
		t.Errorf("expected empty base_url, got %q", cfg.Remote.BaseURL)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/ferry.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "{{invalid yaml"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeTemp(t, "remote:\n  timeout: not-a-duration\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("FERRY_TEST_TOKEN", "secret-token")

	yaml := `remote:
  base_url: ${FERRY_TEST_URL:-https://fallback.example.com}
  headers:
    Authorization: Bearer ${FERRY_TEST_TOKEN}
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	assertEqual(t, "base_url default", cfg.Remote.BaseURL, "https://fallback.example.com")
	assertEqual(t, "expanded header", cfg.Remote.Headers["Authorization"], "Bearer secret-token")
}
