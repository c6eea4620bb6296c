package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"telecine/internal/media"
)

// JobType identifies the kind of work a job performs.
type JobType string

const (
	TypeTranscodeHLS      JobType = "transcode_hls"
	TypeTranscodeShort    JobType = "transcode_short"
	TypeGenerateProxy     JobType = "generate_proxy"
	TypeGenerateThumbnail JobType = "generate_thumbnail"
	TypeGenerateWaveform  JobType = "generate_waveform"
	TypeExtractAudio      JobType = "extract_audio"
	TypeConcatVideos      JobType = "concat_videos"
)

// JobTypes returns every known job type in display order.
func JobTypes() []JobType {
	return []JobType{
		TypeTranscodeHLS,
		TypeTranscodeShort,
		TypeGenerateProxy,
		TypeGenerateThumbnail,
		TypeGenerateWaveform,
		TypeExtractAudio,
		TypeConcatVideos,
	}
}

// ParseJobType converts user input into a JobType.
func ParseJobType(value string) (JobType, error) {
	candidate := JobType(strings.ToLower(strings.TrimSpace(value)))
	for _, jt := range JobTypes() {
		if candidate == jt {
			return jt, nil
		}
	}
	return "", fmt.Errorf("%w: unknown job type %q", ErrInvalidJobType, value)
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRetrying   Status = "retrying"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Statuses returns every job status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusQueued,
		StatusProcessing,
		StatusRetrying,
		StatusCompleted,
		StatusFailed,
		StatusCancelled,
	}
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, st := range Statuses() {
		if candidate == st {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job status %q", value)
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// OutputMetadata describes what a completed job produced.
type OutputMetadata struct {
	ManifestBucket  string           `json:"manifest_bucket,omitempty"`
	ManifestKey     string           `json:"manifest_key,omitempty"`
	DurationSeconds float64          `json:"duration_seconds,omitempty"`
	RenditionBytes  map[string]int64 `json:"rendition_bytes,omitempty"`
}

// IsZero reports whether no output fields are set.
func (m OutputMetadata) IsZero() bool {
	return m.ManifestBucket == "" && m.ManifestKey == "" &&
		m.DurationSeconds == 0 && len(m.RenditionBytes) == 0
}

// Job is one unit of media work tracked in the queue.
type Job struct {
	ID     string
	Type   JobType
	Source media.SourceRef
	Output media.OutputLocation

	// ConfigJSON holds the type-specific parameters exactly as submitted.
	// DecodeConfig interprets it against the job type.
	ConfigJSON json.RawMessage

	Status   Status
	Priority int
	Progress int
	Stage    string

	Attempts    int
	MaxAttempts int

	RequestedBy string
	WorkerID    string

	OutputMetadata *OutputMetadata
	ErrorCode      string
	ErrorMessage   string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastErrorAt *time.Time
	NextRetryAt *time.Time
	HeartbeatAt *time.Time
}

// Config decodes the job's stored parameters for its type.
func (j *Job) Config() (Config, error) {
	return DecodeConfig(j.Type, j.ConfigJSON)
}

// HealthSummary aggregates job counts for diagnostic output.
type HealthSummary struct {
	Total      int
	Queued     int
	Processing int
	Retrying   int
	Completed  int
	Failed     int
	Cancelled  int
}

// DatabaseHealth carries low-level diagnostics about the job database file.
type DatabaseHealth struct {
	DBPath           string
	SchemaVersion    string
	DatabaseExists   bool
	DatabaseReadable bool
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	TotalJobs        int
	IntegrityCheck   bool
	Error            string
}

// PendingSince reports the instant the job became eligible for pickup.
// Queued jobs are eligible from creation; retrying jobs from their retry
// deadline.
func (j *Job) PendingSince() time.Time {
	if j.Status == StatusRetrying && j.NextRetryAt != nil {
		return *j.NextRetryAt
	}
	return j.CreatedAt
}
