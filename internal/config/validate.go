package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateTranscode(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validatePlayback(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.IngestBucket == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/telecine/config.toml"
		}
		return fmt.Errorf("storage.ingest_bucket is required. Edit %s (create with 'telecine config init')", defaultPath)
	}
	if c.Storage.PublishBucket == "" {
		return errors.New("storage.publish_bucket must be set")
	}
	if c.Storage.Endpoint != "" && !strings.Contains(c.Storage.Endpoint, "://") {
		return errors.New("storage.endpoint must include a scheme (http:// or https://)")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if err := ensurePositiveMap(map[string]int{
		"queue.worker_count":  c.Queue.WorkerCount,
		"queue.poll_interval": c.Queue.PollInterval,
		"queue.max_attempts":  c.Queue.MaxAttempts,
	}); err != nil {
		return err
	}
	if c.Queue.HeartbeatInterval <= 0 {
		return errors.New("queue.heartbeat_interval must be positive")
	}
	if c.Queue.HeartbeatTimeout <= 0 {
		return errors.New("queue.heartbeat_timeout must be positive")
	}
	if c.Queue.HeartbeatTimeout <= c.Queue.HeartbeatInterval {
		return errors.New("queue.heartbeat_timeout must be greater than queue.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateTranscode() error {
	return ensurePositiveMap(map[string]int{
		"transcode.segment_seconds": c.Transcode.SegmentSeconds,
		"transcode.timeout_minutes": c.Transcode.TimeoutMinutes,
	})
}

func (c *Config) validateUpload() error {
	if c.Upload.PartSizeMiB < 5 {
		return errors.New("upload.part_size_mib must be at least 5 (multipart minimum part size)")
	}
	if c.Upload.URLTTLMinutes <= 0 {
		return errors.New("upload.url_ttl_minutes must be positive")
	}
	return nil
}

func (c *Config) validatePlayback() error {
	if c.Playback.KeyPairID != "" {
		if c.Playback.PrivateKeyPath == "" {
			return errors.New("playback.private_key_path must be set when playback.key_pair_id is set")
		}
		if c.Playback.BaseURL == "" {
			return errors.New("playback.base_url must be set when playback.key_pair_id is set")
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
