package upload

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"telecine/internal/blobstore"
	"telecine/internal/config"
	"telecine/internal/logging"
	"telecine/internal/media"
)

const (
	// minPartSize is the smallest part the storage backend accepts for any
	// part except the last one.
	minPartSize = int64(5) << 20

	// maxPartCount is the backend's hard ceiling on parts per upload. When
	// the requested size needs more parts, the last part absorbs the
	// remainder instead.
	maxPartCount = 10000

	defaultURLTTL = time.Hour
)

// Backend is the slice of object storage the upload manager drives.
// *blobstore.Client satisfies it.
type Backend interface {
	CreateMultipart(ctx context.Context, bucket, key, contentType string) (string, error)
	PresignPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)
	CompleteMultipart(ctx context.Context, bucket, key, uploadID string, parts []blobstore.CompletedPart) error
	AbortMultipart(ctx context.Context, bucket, key, uploadID string) error
	PresignPut(ctx context.Context, bucket, key, contentType string, ttl time.Duration) (string, error)
}

// Manager coordinates multipart upload sessions between clients and object
// storage. Clients upload part bytes directly to presigned URLs; the manager
// only brokers session state and the assembly call.
type Manager struct {
	store    *SessionStore
	backend  Backend
	layout   *media.Layout
	partSize int64
	urlTTL   time.Duration
	logger   *slog.Logger
}

// NewManager builds a Manager from configuration. Part size below the
// backend minimum is raised to it silently.
func NewManager(cfg *config.Config, store *SessionStore, backend Backend, logger *slog.Logger) *Manager {
	partSize := int64(cfg.Upload.PartSizeMiB) << 20
	if partSize < minPartSize {
		partSize = minPartSize
	}
	ttl := time.Duration(cfg.Upload.URLTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultURLTTL
	}
	return &Manager{
		store:    store,
		backend:  backend,
		layout:   media.NewLayout(cfg.Storage.IngestBucket, cfg.Storage.PublishBucket),
		partSize: partSize,
		urlTTL:   ttl,
		logger:   logging.NewComponentLogger(logger, "upload"),
	}
}

// InitiateRequest describes the object a client wants to upload.
type InitiateRequest struct {
	SourceType  media.SourceType
	SourceID    string
	Filename    string
	ContentType string
	TotalBytes  int64
}

func (r InitiateRequest) validate() error {
	if _, err := media.ParseSourceType(string(r.SourceType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if r.SourceID == "" {
		return fmt.Errorf("%w: source id is required", ErrInvalidRequest)
	}
	if r.TotalBytes <= 0 {
		return fmt.Errorf("%w: total bytes must be positive", ErrInvalidRequest)
	}
	return nil
}

// PartURL is one presigned upload slot.
type PartURL struct {
	Number int32  `json:"number"`
	URL    string `json:"url"`
}

// Initiated is everything a client needs to run a multipart upload.
type Initiated struct {
	SessionID    string
	UploadID     string
	Bucket       string
	Key          string
	PartSize     int64
	PartCount    int
	LastPartSize int64
	PartURLs     []PartURL
	ExpiresAt    time.Time
}

// Initiate opens a multipart upload with the backend, presigns one URL per
// planned part, and records the session as active.
func (m *Manager) Initiate(ctx context.Context, req InitiateRequest) (*Initiated, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	bucket, key := m.layout.IngestLocation(req.SourceType, req.SourceID, req.Filename)
	uploadID, err := m.backend.CreateMultipart(ctx, bucket, key, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("open multipart upload: %w", err)
	}

	partSize, partCount, lastPartSize := planParts(req.TotalBytes, m.partSize)
	urls := make([]PartURL, 0, partCount)
	for number := int32(1); number <= int32(partCount); number++ {
		url, err := m.backend.PresignPart(ctx, bucket, key, uploadID, number, m.urlTTL)
		if err != nil {
			m.abortBackend(ctx, bucket, key, uploadID)
			return nil, fmt.Errorf("presign part %d: %w", number, err)
		}
		urls = append(urls, PartURL{Number: number, URL: url})
	}

	session := &Session{
		ID:         uuid.NewString(),
		UploadID:   uploadID,
		Bucket:     bucket,
		Key:        key,
		Filename:   req.Filename,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		TotalBytes: req.TotalBytes,
		PartSize:   partSize,
		PartCount:  partCount,
		Status:     SessionActive,
	}
	if err := m.store.Insert(ctx, session); err != nil {
		m.abortBackend(ctx, bucket, key, uploadID)
		return nil, err
	}

	m.logger.Info("upload session initiated",
		logging.String("session_id", session.ID),
		logging.String("key", key),
		logging.Int64("total_bytes", req.TotalBytes),
		logging.Int("parts", partCount),
	)
	return &Initiated{
		SessionID:    session.ID,
		UploadID:     uploadID,
		Bucket:       bucket,
		Key:          key,
		PartSize:     partSize,
		PartCount:    partCount,
		LastPartSize: lastPartSize,
		PartURLs:     urls,
		ExpiresAt:    time.Now().UTC().Add(m.urlTTL),
	}, nil
}

// PartInput is one uploaded part reported back by the client.
type PartInput struct {
	Number int32  `json:"number"`
	ETag   string `json:"etag"`
}

// Complete assembles the uploaded parts into the final object and finalizes
// the session. Parts may arrive in any order; they are sorted by part number
// before submission. An incomplete or inconsistent part list fails with an
// AssemblyError without touching the session.
func (m *Manager) Complete(ctx context.Context, uploadID, key string, parts []PartInput) (*Session, error) {
	session, err := m.store.GetByUploadID(ctx, uploadID, key)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w: upload %s", ErrNotFound, uploadID)
	}
	if session.Status != SessionActive {
		return nil, fmt.Errorf("%w: cannot complete %s session %s", ErrInvalidState, session.Status, session.ID)
	}

	if len(parts) != session.PartCount {
		return nil, &AssemblyError{
			Key:    key,
			Reason: fmt.Sprintf("expected %d parts, got %d", session.PartCount, len(parts)),
		}
	}
	sorted := make([]PartInput, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	completed := make([]blobstore.CompletedPart, 0, len(sorted))
	for i, part := range sorted {
		if part.Number != int32(i+1) {
			return nil, &AssemblyError{
				Key:    key,
				Reason: fmt.Sprintf("part %d is missing or duplicated", i+1),
			}
		}
		if part.ETag == "" {
			return nil, &AssemblyError{
				Key:    key,
				Reason: fmt.Sprintf("part %d has no etag", part.Number),
			}
		}
		completed = append(completed, blobstore.CompletedPart{Number: part.Number, ETag: part.ETag})
	}

	if err := m.backend.CompleteMultipart(ctx, session.Bucket, key, uploadID, completed); err != nil {
		return nil, &AssemblyError{Key: key, Reason: "backend rejected part manifest", Err: err}
	}

	rows, err := m.store.MarkCompleted(ctx, session.ID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: session %s changed state during completion", ErrInvalidState, session.ID)
	}

	fresh, err := m.store.GetByID(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	m.logger.Info("upload assembled",
		logging.String("session_id", session.ID),
		logging.String("key", key),
		logging.Int("parts", session.PartCount),
	)
	return fresh, nil
}

// Abort releases the backend upload and marks the session aborted. Aborting
// a session that is already aborted is a no-op success; a completed session
// cannot be aborted.
func (m *Manager) Abort(ctx context.Context, uploadID, key string) error {
	session, err := m.store.GetByUploadID(ctx, uploadID, key)
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("%w: upload %s", ErrNotFound, uploadID)
	}
	switch session.Status {
	case SessionAborted:
		return nil
	case SessionCompleted:
		return fmt.Errorf("%w: cannot abort completed session %s", ErrInvalidState, session.ID)
	}

	if err := m.backend.AbortMultipart(ctx, session.Bucket, key, uploadID); err != nil && !blobstore.IsNotFound(err) {
		return fmt.Errorf("abort multipart upload: %w", err)
	}

	rows, err := m.store.MarkAborted(ctx, session.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if rows == 0 {
		// Lost a race. If the winner also aborted, the requested outcome
		// holds and this call still succeeds.
		fresh, err := m.store.GetByID(ctx, session.ID)
		if err != nil {
			return err
		}
		if fresh == nil || fresh.Status != SessionAborted {
			return fmt.Errorf("%w: session %s changed state during abort", ErrInvalidState, session.ID)
		}
	}
	m.logger.Info("upload aborted",
		logging.String("session_id", session.ID),
		logging.String("key", key),
	)
	return nil
}

// DirectUpload is a single presigned PUT for a small file. No session state
// exists for this path.
type DirectUpload struct {
	Bucket    string
	Key       string
	URL       string
	ExpiresAt time.Time
}

// PresignDirect issues a single time-boxed PUT URL for small objects that do
// not warrant a multipart session.
func (m *Manager) PresignDirect(ctx context.Context, req InitiateRequest) (*DirectUpload, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	bucket, key := m.layout.IngestLocation(req.SourceType, req.SourceID, req.Filename)
	url, err := m.backend.PresignPut(ctx, bucket, key, req.ContentType, m.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return &DirectUpload{
		Bucket:    bucket,
		Key:       key,
		URL:       url,
		ExpiresAt: time.Now().UTC().Add(m.urlTTL),
	}, nil
}

// AbortStale aborts active sessions older than the given age and returns how
// many were cleaned up. Individual failures are logged and skipped so one
// stuck session does not block the sweep.
func (m *Manager) AbortStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	sessions, err := m.store.ListActive(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	aborted := 0
	for _, session := range sessions {
		if err := m.backend.AbortMultipart(ctx, session.Bucket, session.Key, session.UploadID); err != nil && !blobstore.IsNotFound(err) {
			m.logger.Warn("stale upload abort failed",
				logging.String("session_id", session.ID),
				logging.String("key", session.Key),
				logging.Error(err),
			)
			continue
		}
		rows, err := m.store.MarkAborted(ctx, session.ID, time.Now().UTC())
		if err != nil {
			m.logger.Warn("stale upload abort failed",
				logging.String("session_id", session.ID),
				logging.Error(err),
			)
			continue
		}
		if rows > 0 {
			aborted++
		}
	}
	if aborted > 0 {
		m.logger.Info("stale upload sessions aborted", logging.Int("count", aborted))
	}
	return aborted, nil
}

func (m *Manager) abortBackend(ctx context.Context, bucket, key, uploadID string) {
	if err := m.backend.AbortMultipart(ctx, bucket, key, uploadID); err != nil {
		m.logger.Warn("abandoned upload cleanup failed",
			logging.String("key", key),
			logging.Error(err),
		)
	}
}

// planParts partitions totalBytes into fixed-size parts. The part count is
// capped; past the cap the final part absorbs the remainder, so it is the
// only part that may exceed partSize.
func planParts(totalBytes, partSize int64) (size int64, count int, last int64) {
	count = int((totalBytes + partSize - 1) / partSize)
	if count < 1 {
		count = 1
	}
	if count > maxPartCount {
		count = maxPartCount
	}
	last = totalBytes - partSize*int64(count-1)
	return partSize, count, last
}
