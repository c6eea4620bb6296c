package testsupport

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"telecine/internal/config"
	"telecine/internal/jobs"
	"telecine/internal/media"
)

// MustOpenStore opens a jobs.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *jobs.Store {
	t.Helper()

	store, err := jobs.Open(cfg)
	if err != nil {
		t.Fatalf("jobs.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewQueuedJob inserts a queued job with sensible defaults for tests.
func NewQueuedJob(t testing.TB, store *jobs.Store, jobType jobs.JobType) *jobs.Job {
	t.Helper()

	id := uuid.NewString()
	job := &jobs.Job{
		ID:   id,
		Type: jobType,
		Source: media.SourceRef{
			Type:   media.SourceEpisode,
			ID:     "ep-" + id[:8],
			Bucket: "telecine-ingest-test",
			Key:    "episodes/ep-" + id[:8] + "/source/master.mov",
		},
		Status:      jobs.StatusQueued,
		MaxAttempts: 3,
	}
	stored, err := store.Insert(context.Background(), job)
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return stored
}
