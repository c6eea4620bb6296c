package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"telecine/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Storage.Endpoint = "http://127.0.0.1:9000"
	cfgVal.Storage.AccessKeyID = "test-access"
	cfgVal.Storage.SecretAccessKey = "test-secret"
	cfgVal.Storage.IngestBucket = "telecine-ingest-test"
	cfgVal.Storage.PublishBucket = "telecine-publish-test"
	cfgVal.Storage.ForcePathStyle = true

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithBuckets overrides the ingest and publish buckets on the test config.
func WithBuckets(ingest, publish string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.IngestBucket = ingest
		b.cfg.Storage.PublishBucket = publish
	}
}

// WithCallbackURL points job callbacks at the given endpoint.
func WithCallbackURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Callbacks.URL = url
	}
}

// WithPlaybackKey configures signed playback credentials on the test config.
func WithPlaybackKey(keyPairID, privateKeyPath, baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Playback.KeyPairID = keyPairID
		b.cfg.Playback.PrivateKeyPath = privateKeyPath
		b.cfg.Playback.BaseURL = baseURL
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default telecine external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
