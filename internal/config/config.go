package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Storage contains configuration for the S3-compatible object store backing
// ingest and publish buckets.
type Storage struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	IngestBucket    string `toml:"ingest_bucket"`
	PublishBucket   string `toml:"publish_bucket"`
	ForcePathStyle  bool   `toml:"force_path_style"`
}

// Queue contains configuration for job scheduling and worker timing.
type Queue struct {
	WorkerCount       int `toml:"worker_count"`
	PollInterval      int `toml:"poll_interval"`
	MaxAttempts       int `toml:"max_attempts"`
	HeartbeatInterval int `toml:"heartbeat_interval"`
	HeartbeatTimeout  int `toml:"heartbeat_timeout"`
}

// Transcode contains configuration for the HLS encoding engine.
type Transcode struct {
	Preset         string `toml:"preset"`
	SegmentSeconds int    `toml:"segment_seconds"`
	TimeoutMinutes int    `toml:"timeout_minutes"`
}

// Upload contains configuration for multipart ingest sessions.
type Upload struct {
	PartSizeMiB   int `toml:"part_size_mib"`
	URLTTLMinutes int `toml:"url_ttl_minutes"`
}

// Playback contains configuration for signed playback credentials. When the
// signing key is not configured, playback grants fall back to presigned
// storage URLs.
type Playback struct {
	BaseURL        string `toml:"base_url"`
	KeyPairID      string `toml:"key_pair_id"`
	PrivateKeyPath string `toml:"private_key_path"`
	URLTTLMinutes  int    `toml:"url_ttl_minutes"`
	CookieDomain   string `toml:"cookie_domain"`
}

// Callbacks contains configuration for job completion webhooks.
type Callbacks struct {
	URL            string `toml:"url"`
	AuthToken      string `toml:"auth_token"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for telecine.
//
// Configuration sections by subsystem:
//   - Paths: staging scratch space and log/runtime state directory
//   - Storage: S3-compatible object store credentials and buckets
//   - Queue: worker counts, polling, retry, and heartbeat timing
//   - Transcode: ffmpeg preset, HLS segmenting, and invocation timeout
//   - Upload: multipart part sizing and presigned URL lifetime
//   - Playback: CDN signing key material and grant lifetime
//   - Callbacks: job completion webhook endpoint
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	Storage   Storage   `toml:"storage"`
	Queue     Queue     `toml:"queue"`
	Transcode Transcode `toml:"transcode"`
	Upload    Upload    `toml:"upload"`
	Playback  Playback  `toml:"playback"`
	Callbacks Callbacks `toml:"callbacks"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/telecine/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/telecine/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("telecine.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for transcoding.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
