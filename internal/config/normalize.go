package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeTranscode()
	c.normalizeUpload()
	if err := c.normalizePlayback(); err != nil {
		return err
	}
	c.normalizeCallbacks()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.AccessKeyID = strings.TrimSpace(c.Storage.AccessKeyID)
	if c.Storage.AccessKeyID == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			c.Storage.AccessKeyID = strings.TrimSpace(value)
		}
	}
	c.Storage.SecretAccessKey = strings.TrimSpace(c.Storage.SecretAccessKey)
	if c.Storage.SecretAccessKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			c.Storage.SecretAccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.IngestBucket = strings.TrimSpace(c.Storage.IngestBucket)
	c.Storage.PublishBucket = strings.TrimSpace(c.Storage.PublishBucket)
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.WorkerCount <= 0 {
		c.Queue.WorkerCount = defaultQueueWorkerCount
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = defaultQueueMaxAttempts
	}
}

func (c *Config) normalizeTranscode() {
	c.Transcode.Preset = strings.ToLower(strings.TrimSpace(c.Transcode.Preset))
	if c.Transcode.Preset == "" {
		c.Transcode.Preset = defaultTranscodePreset
	}
	if c.Transcode.SegmentSeconds <= 0 {
		c.Transcode.SegmentSeconds = defaultTranscodeSegment
	}
	if c.Transcode.TimeoutMinutes <= 0 {
		c.Transcode.TimeoutMinutes = defaultTranscodeTimeout
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.PartSizeMiB <= 0 {
		c.Upload.PartSizeMiB = defaultUploadPartSizeMiB
	}
	if c.Upload.URLTTLMinutes <= 0 {
		c.Upload.URLTTLMinutes = defaultUploadURLTTLMinutes
	}
}

func (c *Config) normalizePlayback() error {
	var err error
	c.Playback.BaseURL = strings.TrimRight(strings.TrimSpace(c.Playback.BaseURL), "/")
	c.Playback.KeyPairID = strings.TrimSpace(c.Playback.KeyPairID)
	c.Playback.PrivateKeyPath = strings.TrimSpace(c.Playback.PrivateKeyPath)
	if c.Playback.PrivateKeyPath != "" {
		if c.Playback.PrivateKeyPath, err = expandPath(c.Playback.PrivateKeyPath); err != nil {
			return fmt.Errorf("playback.private_key_path: %w", err)
		}
	}
	if c.Playback.URLTTLMinutes <= 0 {
		c.Playback.URLTTLMinutes = defaultPlaybackURLTTLMinutes
	}
	c.Playback.CookieDomain = strings.TrimSpace(c.Playback.CookieDomain)
	return nil
}

func (c *Config) normalizeCallbacks() {
	c.Callbacks.URL = strings.TrimSpace(c.Callbacks.URL)
	c.Callbacks.AuthToken = strings.TrimSpace(c.Callbacks.AuthToken)
	if c.Callbacks.RequestTimeout <= 0 {
		c.Callbacks.RequestTimeout = defaultCallbackRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
