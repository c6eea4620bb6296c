package upload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"telecine/internal/media"
)

const sessionColumns = "id, upload_id, bucket, object_key, filename, source_type, source_id, total_bytes, part_size, part_count, status, created_at, updated_at, completed_at"

// timestampLayout matches the jobs store so both tables in the shared
// database serialize time identically and order under string comparison.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SessionStore persists upload sessions. It rides on the jobs database
// handle, so the busy timeout and WAL mode configured there apply here too.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore wraps an open database handle. The upload_sessions table
// is created by the jobs schema.
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Insert persists a new session.
func (s *SessionStore) Insert(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is nil")
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}
	if session.Status == "" {
		session.Status = SessionActive
	}

	query := fmt.Sprintf("INSERT INTO upload_sessions (%s) VALUES (%s)", sessionColumns, makeSessionPlaceholders(14))
	_, err := s.db.ExecContext(ctx, query,
		session.ID,
		session.UploadID,
		session.Bucket,
		session.Key,
		session.Filename,
		string(session.SourceType),
		session.SourceID,
		session.TotalBytes,
		session.PartSize,
		session.PartCount,
		string(session.Status),
		formatSessionTime(session.CreatedAt),
		formatSessionTime(session.UpdatedAt),
		nullableSessionTime(session.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert upload session: %w", err)
	}
	return nil
}

// GetByID fetches a session by its identifier. Returns (nil, nil) when no
// session exists.
func (s *SessionStore) GetByID(ctx context.Context, id string) (*Session, error) {
	query := fmt.Sprintf("SELECT %s FROM upload_sessions WHERE id = ?", sessionColumns)
	row := s.db.QueryRowContext(ctx, query, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload session: %w", err)
	}
	return session, nil
}

// GetByUploadID fetches the session that owns a backend multipart upload.
// The object key disambiguates upload identifiers reused across buckets.
// Returns (nil, nil) when no session exists.
func (s *SessionStore) GetByUploadID(ctx context.Context, uploadID, key string) (*Session, error) {
	query := fmt.Sprintf("SELECT %s FROM upload_sessions WHERE upload_id = ? AND object_key = ?", sessionColumns)
	row := s.db.QueryRowContext(ctx, query, uploadID, key)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload session by upload id: %w", err)
	}
	return session, nil
}

// MarkCompleted finalizes an active session. Returns the number of rows
// changed so callers can detect lost races.
func (s *SessionStore) MarkCompleted(ctx context.Context, id string, now time.Time) (int64, error) {
	stamp := formatSessionTime(now)
	result, err := s.db.ExecContext(ctx,
		"UPDATE upload_sessions SET status = ?, updated_at = ?, completed_at = ? WHERE id = ? AND status = ?",
		string(SessionCompleted), stamp, stamp, id, string(SessionActive),
	)
	if err != nil {
		return 0, fmt.Errorf("mark upload session completed: %w", err)
	}
	return result.RowsAffected()
}

// MarkAborted abandons an active session.
func (s *SessionStore) MarkAborted(ctx context.Context, id string, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"UPDATE upload_sessions SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(SessionAborted), formatSessionTime(now), id, string(SessionActive),
	)
	if err != nil {
		return 0, fmt.Errorf("mark upload session aborted: %w", err)
	}
	return result.RowsAffected()
}

// ListActive returns active sessions created before the cutoff, oldest
// first. The janitor uses it to abort uploads the client walked away from.
func (s *SessionStore) ListActive(ctx context.Context, createdBefore time.Time) ([]*Session, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM upload_sessions WHERE status = ? AND created_at < ? ORDER BY created_at, rowid",
		sessionColumns,
	)
	rows, err := s.db.QueryContext(ctx, query, string(SessionActive), formatSessionTime(createdBefore))
	if err != nil {
		return nil, fmt.Errorf("list active upload sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload sessions: %w", err)
	}
	return sessions, nil
}

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var (
		id           string
		uploadID     string
		bucket       string
		objectKey    string
		filename     string
		sourceType   string
		sourceID     string
		totalBytes   int64
		partSize     int64
		partCount    int64
		statusStr    string
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		completedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&uploadID,
		&bucket,
		&objectKey,
		&filename,
		&sourceType,
		&sourceID,
		&totalBytes,
		&partSize,
		&partCount,
		&statusStr,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	session := &Session{
		ID:         id,
		UploadID:   uploadID,
		Bucket:     bucket,
		Key:        objectKey,
		Filename:   filename,
		SourceType: media.SourceType(sourceType),
		SourceID:   sourceID,
		TotalBytes: totalBytes,
		PartSize:   partSize,
		PartCount:  int(partCount),
		Status:     SessionStatus(statusStr),
	}
	if created, err := parseSessionTime(createdRaw.String); err == nil {
		session.CreatedAt = created
	}
	if updated, err := parseSessionTime(updatedRaw.String); err == nil {
		session.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseSessionTime(completedRaw.String); err == nil {
			session.CompletedAt = &completed
		}
	}
	return session, nil
}

func formatSessionTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func nullableSessionTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatSessionTime(*value)
}

func parseSessionTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makeSessionPlaceholders(count int) string {
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
