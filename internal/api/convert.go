package api

import (
	"time"

	"telecine/internal/jobs"
	"telecine/internal/upload"
)

// FromJob converts a stored job into its wire representation.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	view := Job{
		ID:           job.ID,
		Type:         string(job.Type),
		SourceType:   string(job.Source.Type),
		SourceID:     job.Source.ID,
		SourceBucket: job.Source.Bucket,
		SourceKey:    job.Source.Key,
		OutputBucket: job.Output.Bucket,
		OutputPrefix: job.Output.Prefix,
		Status:       string(job.Status),
		Priority:     job.Priority,
		Progress:     job.Progress,
		Stage:        job.Stage,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		RequestedBy:  job.RequestedBy,
		WorkerID:     job.WorkerID,
		ErrorCode:    job.ErrorCode,
		ErrorMessage: job.ErrorMessage,
		Config:       job.ConfigJSON,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
		StartedAt:    formatTimePtr(job.StartedAt),
		CompletedAt:  formatTimePtr(job.CompletedAt),
		NextRetryAt:  formatTimePtr(job.NextRetryAt),
	}
	if job.OutputMetadata != nil {
		view.Output = &JobOutput{
			ManifestBucket:  job.OutputMetadata.ManifestBucket,
			ManifestKey:     job.OutputMetadata.ManifestKey,
			DurationSeconds: job.OutputMetadata.DurationSeconds,
			RenditionBytes:  job.OutputMetadata.RenditionBytes,
		}
	}
	return view
}

// FromJobs converts a job slice, skipping nil entries.
func FromJobs(items []*jobs.Job) []Job {
	views := make([]Job, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		views = append(views, FromJob(item))
	}
	return views
}

// FromSession converts a stored upload session into its wire representation.
func FromSession(session *upload.Session) UploadSession {
	if session == nil {
		return UploadSession{}
	}
	return UploadSession{
		ID:          session.ID,
		UploadID:    session.UploadID,
		Bucket:      session.Bucket,
		Key:         session.Key,
		Filename:    session.Filename,
		SourceType:  string(session.SourceType),
		SourceID:    session.SourceID,
		TotalBytes:  session.TotalBytes,
		PartSize:    session.PartSize,
		PartCount:   session.PartCount,
		Status:      string(session.Status),
		CreatedAt:   formatTime(session.CreatedAt),
		CompletedAt: formatTimePtr(session.CompletedAt),
	}
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(dateTimeFormat)
}

func formatTimePtr(value *time.Time) string {
	if value == nil {
		return ""
	}
	return formatTime(*value)
}
