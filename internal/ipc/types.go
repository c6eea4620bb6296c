package ipc

import (
	"encoding/json"

	"telecine/internal/api"
)

// StartRequest triggers daemon processing startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon processing.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// PingRequest checks daemon liveness.
type PingRequest struct{}

// PingResponse carries the responding daemon's process ID.
type PingResponse struct {
	PID int `json:"pid"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// Job mirrors the HTTP API job DTO for internal IPC callers.
type Job = api.Job

// UploadSession mirrors the HTTP API upload session DTO.
type UploadSession = api.UploadSession

// DependencyStatus describes availability of an external dependency.
type DependencyStatus = api.DependencyStatus

// PlaybackGrant mirrors the HTTP API playback grant DTO.
type PlaybackGrant = api.PlaybackGrant

// StatusResponse represents combined daemon/pipeline status information.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Workers      int                `json:"workers"`
	JobStats     map[string]int     `json:"job_stats"`
	JobDBPath    string             `json:"job_db_path"`
	LockPath     string             `json:"lock_path"`
	LogPath      string             `json:"log_path"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// JobSubmitRequest enqueues a new media job.
type JobSubmitRequest struct {
	Type         string          `json:"type"`
	SourceType   string          `json:"source_type"`
	SourceID     string          `json:"source_id"`
	SourceBucket string          `json:"source_bucket"`
	SourceKey    string          `json:"source_key"`
	OutputBucket string          `json:"output_bucket,omitempty"`
	OutputPrefix string          `json:"output_prefix,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	Priority     int             `json:"priority"`
	MaxAttempts  int             `json:"max_attempts"`
	RequestedBy  string          `json:"requested_by"`
}

// JobSubmitResponse contains the accepted job.
type JobSubmitResponse struct {
	Job Job `json:"job"`
}

// JobListRequest filters job listing by status.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
}

// JobListResponse contains job entries.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobDescribeRequest fetches a single job by id.
type JobDescribeRequest struct {
	ID string `json:"id"`
}

// JobDescribeResponse contains a single job.
type JobDescribeResponse struct {
	Job Job `json:"job"`
}

// JobCancelRequest cancels a job that has not finished.
type JobCancelRequest struct {
	ID string `json:"id"`
}

// JobCancelResponse contains the cancelled job.
type JobCancelResponse struct {
	Job Job `json:"job"`
}

// JobRetryRequest retries failed jobs. Empty list means all failed jobs.
type JobRetryRequest struct {
	IDs []string `json:"ids"`
}

// JobRetryResponse reports number of requeued jobs.
type JobRetryResponse struct {
	Updated int64 `json:"updated"`
}

// JobClearCompletedRequest removes completed jobs.
type JobClearCompletedRequest struct{}

// JobClearCompletedResponse reports number of removed entries.
type JobClearCompletedResponse struct {
	Removed int64 `json:"removed"`
}

// JobHealthRequest fetches aggregate diagnostics.
type JobHealthRequest struct{}

// JobHealthResponse reports job queue health information.
type JobHealthResponse struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Retrying   int `json:"retrying"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present"`
	MissingColumns   []string `json:"missing_columns"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalJobs        int      `json:"total_jobs"`
	Error            string   `json:"error"`
}

// UploadPartURL is one presigned part URL of a multipart session.
type UploadPartURL struct {
	Number int32  `json:"number"`
	URL    string `json:"url"`
}

// UploadPart identifies one uploaded part when completing a session.
type UploadPart struct {
	Number int32  `json:"number"`
	ETag   string `json:"etag"`
}

// UploadInitiateRequest opens a multipart upload session.
type UploadInitiateRequest struct {
	SourceType  string `json:"source_type"`
	SourceID    string `json:"source_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	TotalBytes  int64  `json:"total_bytes"`
}

// UploadInitiateResponse contains everything a client needs to upload parts.
type UploadInitiateResponse struct {
	SessionID    string          `json:"session_id"`
	UploadID     string          `json:"upload_id"`
	Bucket       string          `json:"bucket"`
	Key          string          `json:"key"`
	PartSize     int64           `json:"part_size"`
	PartCount    int             `json:"part_count"`
	LastPartSize int64           `json:"last_part_size"`
	PartURLs     []UploadPartURL `json:"part_urls"`
	ExpiresAt    string          `json:"expires_at"`
}

// UploadCompleteRequest assembles a finished multipart upload.
type UploadCompleteRequest struct {
	UploadID string       `json:"upload_id"`
	Key      string       `json:"key"`
	Parts    []UploadPart `json:"parts"`
}

// UploadCompleteResponse contains the finalized session.
type UploadCompleteResponse struct {
	Session UploadSession `json:"session"`
}

// UploadAbortRequest releases a multipart upload session.
type UploadAbortRequest struct {
	UploadID string `json:"upload_id"`
	Key      string `json:"key"`
}

// UploadAbortResponse indicates abort result.
type UploadAbortResponse struct {
	Aborted bool `json:"aborted"`
}

// UploadPresignRequest issues a single presigned PUT for a small file.
type UploadPresignRequest struct {
	SourceType  string `json:"source_type"`
	SourceID    string `json:"source_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	TotalBytes  int64  `json:"total_bytes"`
}

// UploadPresignResponse contains the presigned PUT target.
type UploadPresignResponse struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// SignPlaybackRequest issues playback credentials for a published source.
type SignPlaybackRequest struct {
	SourceType  string `json:"source_type"`
	SourceID    string `json:"source_id"`
	ManifestKey string `json:"manifest_key,omitempty"`
	TTLMinutes  int    `json:"ttl_minutes"`
	SourceIP    string `json:"source_ip,omitempty"`
	Cookies     bool   `json:"cookies"`
}

// SignPlaybackResponse contains issued playback credentials.
type SignPlaybackResponse struct {
	Grant PlaybackGrant `json:"grant"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
