package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a media job in a transport-friendly format.
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	SourceType   string          `json:"sourceType"`
	SourceID     string          `json:"sourceId"`
	SourceBucket string          `json:"sourceBucket"`
	SourceKey    string          `json:"sourceKey"`
	OutputBucket string          `json:"outputBucket,omitempty"`
	OutputPrefix string          `json:"outputPrefix,omitempty"`
	Status       string          `json:"status"`
	Priority     int             `json:"priority"`
	Progress     int             `json:"progress"`
	Stage        string          `json:"stage,omitempty"`
	Attempts     int             `json:"attempts"`
	MaxAttempts  int             `json:"maxAttempts"`
	RequestedBy  string          `json:"requestedBy,omitempty"`
	WorkerID     string          `json:"workerId,omitempty"`
	Output       *JobOutput      `json:"output,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
	StartedAt    string          `json:"startedAt,omitempty"`
	CompletedAt  string          `json:"completedAt,omitempty"`
	NextRetryAt  string          `json:"nextRetryAt,omitempty"`
}

// JobOutput mirrors the output metadata recorded on completed jobs.
type JobOutput struct {
	ManifestBucket  string           `json:"manifestBucket,omitempty"`
	ManifestKey     string           `json:"manifestKey,omitempty"`
	DurationSeconds float64          `json:"durationSeconds,omitempty"`
	RenditionBytes  map[string]int64 `json:"renditionBytes,omitempty"`
}

// UploadSession describes a multipart upload session.
type UploadSession struct {
	ID          string `json:"id"`
	UploadID    string `json:"uploadId"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Filename    string `json:"filename,omitempty"`
	SourceType  string `json:"sourceType"`
	SourceID    string `json:"sourceId"`
	TotalBytes  int64  `json:"totalBytes"`
	PartSize    int64  `json:"partSize"`
	PartCount   int    `json:"partCount"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// DependencyStatus captures availability of an external tool.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	Workers      int                `json:"workers"`
	JobStats     map[string]int     `json:"jobStats"`
	JobDBPath    string             `json:"jobDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	LogPath      string             `json:"logPath,omitempty"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// PlaybackCookie is one credential cookie of a playback grant.
type PlaybackCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PlaybackGrant carries signed playback credentials for a published source.
type PlaybackGrant struct {
	URL          string           `json:"url"`
	Method       string           `json:"method"`
	CookieDomain string           `json:"cookieDomain,omitempty"`
	Cookies      []PlaybackCookie `json:"cookies,omitempty"`
	ExpiresAt    string           `json:"expiresAt"`
}
