package jobs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"telecine/internal/ladder"
)

// Config is the decoded, type-specific parameter block of a job. The
// concrete type matches the job type that carried it.
type Config interface {
	Validate() error
}

// TranscodeConfig parameterizes transcode_hls and transcode_short jobs.
type TranscodeConfig struct {
	// Qualities selects ladder tiers by name. Empty means the full
	// default ladder, still capped by the source resolution.
	Qualities      []string `json:"qualities,omitempty"`
	SegmentSeconds int      `json:"segment_seconds,omitempty"`
}

func (c TranscodeConfig) Validate() error {
	if err := ladder.ValidateQualities(c.Qualities); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SegmentSeconds < 0 {
		return fmt.Errorf("%w: segment_seconds must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ProxyConfig parameterizes generate_proxy jobs.
type ProxyConfig struct {
	Height    int `json:"height,omitempty"`
	VideoKbps int `json:"video_kbps,omitempty"`
}

func (c ProxyConfig) Validate() error {
	if c.Height < 0 {
		return fmt.Errorf("%w: height must not be negative", ErrInvalidConfig)
	}
	if c.VideoKbps < 0 {
		return fmt.Errorf("%w: video_kbps must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ThumbnailConfig parameterizes generate_thumbnail jobs.
type ThumbnailConfig struct {
	TimestampSeconds float64 `json:"timestamp_seconds,omitempty"`
	Width            int     `json:"width,omitempty"`
}

func (c ThumbnailConfig) Validate() error {
	if c.TimestampSeconds < 0 {
		return fmt.Errorf("%w: timestamp_seconds must not be negative", ErrInvalidConfig)
	}
	if c.Width < 0 {
		return fmt.Errorf("%w: width must not be negative", ErrInvalidConfig)
	}
	return nil
}

// WaveformConfig parameterizes generate_waveform jobs.
type WaveformConfig struct {
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

func (c WaveformConfig) Validate() error {
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("%w: waveform dimensions must not be negative", ErrInvalidConfig)
	}
	return nil
}

// AudioExtractConfig parameterizes extract_audio jobs.
type AudioExtractConfig struct {
	// Format selects the container. Empty defaults to m4a.
	Format string `json:"format,omitempty"`
}

func (c AudioExtractConfig) Validate() error {
	switch c.Format {
	case "", "m4a", "wav":
		return nil
	default:
		return fmt.Errorf("%w: unsupported audio format %q", ErrInvalidConfig, c.Format)
	}
}

// ConcatConfig parameterizes concat_videos jobs. SourceKeys are additional
// objects in the source bucket stitched after the job's primary source.
type ConcatConfig struct {
	SourceKeys []string `json:"source_keys"`
}

func (c ConcatConfig) Validate() error {
	if len(c.SourceKeys) < 1 {
		return fmt.Errorf("%w: concat requires at least one additional source key", ErrInvalidConfig)
	}
	for _, key := range c.SourceKeys {
		if key == "" {
			return fmt.Errorf("%w: concat source keys must not be empty", ErrInvalidConfig)
		}
	}
	return nil
}

// DecodeConfig interprets raw parameters against a job type. A nil or empty
// payload yields the type's zero config, which validates as defaults.
// Unknown keys are rejected so typos surface at submission instead of being
// silently ignored mid-pipeline.
func DecodeConfig(jt JobType, raw json.RawMessage) (Config, error) {
	var cfg Config
	switch jt {
	case TypeTranscodeHLS, TypeTranscodeShort:
		cfg = &TranscodeConfig{}
	case TypeGenerateProxy:
		cfg = &ProxyConfig{}
	case TypeGenerateThumbnail:
		cfg = &ThumbnailConfig{}
	case TypeGenerateWaveform:
		cfg = &WaveformConfig{}
	case TypeExtractAudio:
		cfg = &AudioExtractConfig{}
	case TypeConcatVideos:
		cfg = &ConcatConfig{}
	default:
		return nil, fmt.Errorf("%w: unknown job type %q", ErrInvalidJobType, jt)
	}
	if len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: decoding %s config: %v", ErrInvalidConfig, jt, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return deref(cfg), nil
}

// deref returns the value form so callers can type-switch on concrete
// structs rather than pointers.
func deref(cfg Config) Config {
	switch c := cfg.(type) {
	case *TranscodeConfig:
		return *c
	case *ProxyConfig:
		return *c
	case *ThumbnailConfig:
		return *c
	case *WaveformConfig:
		return *c
	case *AudioExtractConfig:
		return *c
	case *ConcatConfig:
		return *c
	default:
		return cfg
	}
}
