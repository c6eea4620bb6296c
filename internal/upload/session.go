package upload

import (
	"time"

	"telecine/internal/media"
)

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAborted   SessionStatus = "aborted"
)

// IsTerminal reports whether the session permits no further transitions.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionAborted
}

// Session tracks one in-progress multipart upload. Completed and aborted
// sessions are terminal.
type Session struct {
	ID       string
	UploadID string
	Bucket   string
	Key      string
	Filename string

	SourceType media.SourceType
	SourceID   string

	TotalBytes int64
	PartSize   int64
	PartCount  int

	Status SessionStatus

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// SourceRef describes the uploaded object as pipeline input.
func (s *Session) SourceRef() media.SourceRef {
	return media.SourceRef{
		Type:   s.SourceType,
		ID:     s.SourceID,
		Bucket: s.Bucket,
		Key:    s.Key,
	}
}
