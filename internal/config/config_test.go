package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"telecine/internal/config"
)

func TestLoadDefaultConfigUsesEnvCredentialsAndExpandsPaths(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test-access")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err == nil {
		t.Fatal("expected validation error for missing buckets")
	}
	if !strings.Contains(err.Error(), "storage.ingest_bucket") {
		t.Fatalf("expected bucket requirement in error, got %v", err)
	}
	_ = cfg
	_ = resolved
	_ = exists
}

func TestLoadCustomPath(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "telecine.toml")

	type payload struct {
		Storage struct {
			IngestBucket  string `toml:"ingest_bucket"`
			PublishBucket string `toml:"publish_bucket"`
			Endpoint      string `toml:"endpoint"`
		} `toml:"storage"`
		Queue struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"queue"`
		Playback struct {
			BaseURL string `toml:"base_url"`
		} `toml:"playback"`
	}
	custom := payload{}
	custom.Storage.IngestBucket = "ingest"
	custom.Storage.PublishBucket = "publish"
	custom.Storage.Endpoint = "http://localhost:9000"
	custom.Queue.HeartbeatInterval = 20
	custom.Queue.HeartbeatTimeout = 200
	custom.Playback.BaseURL = "https://cdn.example.com/"
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Storage.IngestBucket != "ingest" || cfg.Storage.PublishBucket != "publish" {
		t.Fatalf("unexpected buckets: %+v", cfg.Storage)
	}
	if cfg.Queue.HeartbeatInterval != 20 || cfg.Queue.HeartbeatTimeout != 200 {
		t.Fatalf("unexpected heartbeat settings: %+v", cfg.Queue)
	}
	if cfg.Playback.BaseURL != "https://cdn.example.com" {
		t.Fatalf("expected base url trailing slash trimmed, got %q", cfg.Playback.BaseURL)
	}
	if cfg.Queue.WorkerCount != config.Default().Queue.WorkerCount {
		t.Fatalf("unexpected worker count: %d", cfg.Queue.WorkerCount)
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "telecine", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.StagingDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Storage.IngestBucket = "ingest"
		cfg.Storage.PublishBucket = "publish"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing publish bucket",
			mutate:  func(c *config.Config) { c.Storage.PublishBucket = "" },
			wantErr: "storage.publish_bucket",
		},
		{
			name:    "endpoint without scheme",
			mutate:  func(c *config.Config) { c.Storage.Endpoint = "localhost:9000" },
			wantErr: "storage.endpoint",
		},
		{
			name:    "heartbeat timeout below interval",
			mutate:  func(c *config.Config) { c.Queue.HeartbeatTimeout = c.Queue.HeartbeatInterval },
			wantErr: "queue.heartbeat_timeout",
		},
		{
			name:    "part size below multipart minimum",
			mutate:  func(c *config.Config) { c.Upload.PartSizeMiB = 4 },
			wantErr: "upload.part_size_mib",
		},
		{
			name:    "key pair without private key",
			mutate:  func(c *config.Config) { c.Playback.KeyPairID = "K123" },
			wantErr: "playback.private_key_path",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateSampleWritesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[storage]") {
		t.Fatalf("expected storage section in sample, got %q", data)
	}
}
