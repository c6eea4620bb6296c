package jobs_test

import (
	"encoding/json"
	"errors"
	"testing"

	"telecine/internal/jobs"
)

func TestDecodeConfigPerJobType(t *testing.T) {
	tests := []struct {
		name    string
		jobType jobs.JobType
		raw     string
		check   func(t *testing.T, cfg jobs.Config)
	}{
		{
			name:    "hls transcode",
			jobType: jobs.TypeTranscodeHLS,
			raw:     `{"qualities":["1080p","360p"],"segment_seconds":4}`,
			check: func(t *testing.T, cfg jobs.Config) {
				tc := cfg.(jobs.TranscodeConfig)
				if len(tc.Qualities) != 2 || tc.SegmentSeconds != 4 {
					t.Fatalf("unexpected config: %#v", tc)
				}
			},
		},
		{
			name:    "short transcode shares transcode config",
			jobType: jobs.TypeTranscodeShort,
			raw:     `{"qualities":["720p"]}`,
			check: func(t *testing.T, cfg jobs.Config) {
				if _, ok := cfg.(jobs.TranscodeConfig); !ok {
					t.Fatalf("expected TranscodeConfig, got %T", cfg)
				}
			},
		},
		{
			name:    "proxy",
			jobType: jobs.TypeGenerateProxy,
			raw:     `{"height":540,"video_kbps":1200}`,
			check: func(t *testing.T, cfg jobs.Config) {
				pc := cfg.(jobs.ProxyConfig)
				if pc.Height != 540 || pc.VideoKbps != 1200 {
					t.Fatalf("unexpected config: %#v", pc)
				}
			},
		},
		{
			name:    "thumbnail",
			jobType: jobs.TypeGenerateThumbnail,
			raw:     `{"timestamp_seconds":12.5,"width":640}`,
			check: func(t *testing.T, cfg jobs.Config) {
				tc := cfg.(jobs.ThumbnailConfig)
				if tc.TimestampSeconds != 12.5 || tc.Width != 640 {
					t.Fatalf("unexpected config: %#v", tc)
				}
			},
		},
		{
			name:    "waveform defaults",
			jobType: jobs.TypeGenerateWaveform,
			raw:     "",
			check: func(t *testing.T, cfg jobs.Config) {
				if _, ok := cfg.(jobs.WaveformConfig); !ok {
					t.Fatalf("expected WaveformConfig, got %T", cfg)
				}
			},
		},
		{
			name:    "audio extraction",
			jobType: jobs.TypeExtractAudio,
			raw:     `{"format":"wav"}`,
			check: func(t *testing.T, cfg jobs.Config) {
				ac := cfg.(jobs.AudioExtractConfig)
				if ac.Format != "wav" {
					t.Fatalf("unexpected config: %#v", ac)
				}
			},
		},
		{
			name:    "concat",
			jobType: jobs.TypeConcatVideos,
			raw:     `{"source_keys":["dailies/a/source/one.mov","dailies/a/source/two.mov"]}`,
			check: func(t *testing.T, cfg jobs.Config) {
				cc := cfg.(jobs.ConcatConfig)
				if len(cc.SourceKeys) != 2 {
					t.Fatalf("unexpected config: %#v", cc)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var raw json.RawMessage
			if tc.raw != "" {
				raw = json.RawMessage(tc.raw)
			}
			cfg, err := jobs.DecodeConfig(tc.jobType, raw)
			if err != nil {
				t.Fatalf("DecodeConfig failed: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}

func TestDecodeConfigRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		jobType jobs.JobType
		raw     string
		want    error
	}{
		{"unknown job type", jobs.JobType("remaster"), "", jobs.ErrInvalidJobType},
		{"unknown key", jobs.TypeTranscodeHLS, `{"quality":"720p"}`, jobs.ErrInvalidConfig},
		{"unknown ladder tier", jobs.TypeTranscodeHLS, `{"qualities":["999p"]}`, jobs.ErrInvalidConfig},
		{"negative segment", jobs.TypeTranscodeHLS, `{"segment_seconds":-2}`, jobs.ErrInvalidConfig},
		{"negative thumbnail timestamp", jobs.TypeGenerateThumbnail, `{"timestamp_seconds":-1}`, jobs.ErrInvalidConfig},
		{"unsupported audio format", jobs.TypeExtractAudio, `{"format":"flac"}`, jobs.ErrInvalidConfig},
		{"concat without sources", jobs.TypeConcatVideos, `{"source_keys":[]}`, jobs.ErrInvalidConfig},
		{"concat missing config", jobs.TypeConcatVideos, "", jobs.ErrInvalidConfig},
		{"concat empty key", jobs.TypeConcatVideos, `{"source_keys":["a.mov",""]}`, jobs.ErrInvalidConfig},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var raw json.RawMessage
			if tc.raw != "" {
				raw = json.RawMessage(tc.raw)
			}
			_, err := jobs.DecodeConfig(tc.jobType, raw)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseJobTypeAndStatus(t *testing.T) {
	jt, err := jobs.ParseJobType("  Transcode_HLS ")
	if err != nil {
		t.Fatalf("ParseJobType failed: %v", err)
	}
	if jt != jobs.TypeTranscodeHLS {
		t.Fatalf("expected transcode_hls, got %s", jt)
	}
	if _, err := jobs.ParseJobType("remaster"); !errors.Is(err, jobs.ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}

	st, err := jobs.ParseStatus("QUEUED")
	if err != nil {
		t.Fatalf("ParseStatus failed: %v", err)
	}
	if st != jobs.StatusQueued {
		t.Fatalf("expected queued, got %s", st)
	}
	if !jobs.StatusFailed.IsTerminal() || jobs.StatusRetrying.IsTerminal() {
		t.Fatal("terminal classification is wrong")
	}
}
