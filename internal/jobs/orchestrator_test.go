package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"telecine/internal/jobs"
	"telecine/internal/logging"
	"telecine/internal/media"
	"telecine/internal/notify"
	"telecine/internal/testsupport"
)

func newOrchestrator(t *testing.T) (*jobs.Orchestrator, *jobs.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	return jobs.NewOrchestrator(cfg, store, logging.NewNop()), store
}

func sourceRef(id string) media.SourceRef {
	return media.SourceRef{
		Type:   media.SourceEpisode,
		ID:     id,
		Bucket: "telecine-ingest-test",
		Key:    "episodes/" + id + "/source/master.mov",
	}
}

func TestCreateJobValidatesSubmission(t *testing.T) {
	orch, _ := newOrchestrator(t)
	ctx := context.Background()

	job, err := orch.CreateJob(ctx, jobs.SubmitRequest{
		Type:     jobs.TypeTranscodeHLS,
		Source:   sourceRef("ep-100"),
		Config:   json.RawMessage(`{"qualities":["720p","480p"],"segment_seconds":4}`),
		Priority: 3,
	})
	if err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if job.Status != jobs.StatusQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}
	if job.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts, got %d", job.MaxAttempts)
	}

	decoded, err := job.Config()
	if err != nil {
		t.Fatalf("decode stored config: %v", err)
	}
	tc, ok := decoded.(jobs.TranscodeConfig)
	if !ok {
		t.Fatalf("expected TranscodeConfig, got %T", decoded)
	}
	if len(tc.Qualities) != 2 || tc.SegmentSeconds != 4 {
		t.Fatalf("unexpected decoded config: %#v", tc)
	}
}

func TestCreateJobRejectsBadInput(t *testing.T) {
	orch, _ := newOrchestrator(t)
	ctx := context.Background()

	_, err := orch.CreateJob(ctx, jobs.SubmitRequest{Type: "remaster", Source: sourceRef("ep-1")})
	if !errors.Is(err, jobs.ErrInvalidJobType) {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}

	_, err = orch.CreateJob(ctx, jobs.SubmitRequest{
		Type:   jobs.TypeTranscodeHLS,
		Source: sourceRef("ep-2"),
		Config: json.RawMessage(`{"quality":"720p"}`),
	})
	if !errors.Is(err, jobs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown key, got %v", err)
	}

	_, err = orch.CreateJob(ctx, jobs.SubmitRequest{
		Type:   jobs.TypeTranscodeHLS,
		Source: media.SourceRef{Type: media.SourceEpisode},
	})
	if !errors.Is(err, jobs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for incomplete source, got %v", err)
	}
}

func TestGetJobMissingReturnsNotFound(t *testing.T) {
	orch, _ := newOrchestrator(t)

	_, err := orch.GetJob(context.Background(), "nope")
	if !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkProcessingSingleWinner(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()
	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, worker := range []string{"worker-a", "worker-b"} {
		wg.Add(1)
		go func(workerID string) {
			defer wg.Done()
			_, err := orch.MarkProcessing(ctx, job.ID, workerID)
			results <- err
		}(worker)
	}
	wg.Wait()
	close(results)

	var wins, losses int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, jobs.ErrInvalidTransition):
			losses++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got wins=%d losses=%d", wins, losses)
	}
}

func TestFailJobSchedulesExponentialRetry(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()
	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)

	if _, err := orch.MarkProcessing(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	before := time.Now().UTC()
	failed, err := orch.FailJob(ctx, job.ID, "encoding_error", "ffmpeg exited 1")
	after := time.Now().UTC()
	if err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	if failed.Status != jobs.StatusRetrying {
		t.Fatalf("expected retrying status, got %s", failed.Status)
	}
	if failed.Attempts != 1 {
		t.Fatalf("expected one recorded attempt, got %d", failed.Attempts)
	}
	if failed.NextRetryAt == nil {
		t.Fatal("expected a retry deadline")
	}
	lower := before.Add(time.Minute)
	upper := after.Add(time.Minute + time.Second)
	if failed.NextRetryAt.Before(lower) || failed.NextRetryAt.After(upper) {
		t.Fatalf("first retry outside 1m window: %s not in [%s, %s]", failed.NextRetryAt, lower, upper)
	}

	// Second failure doubles the delay. The retry gate only applies to
	// claims through ListPending, so claim directly with a future instant.
	if rows, err := store.Claim(ctx, job.ID, "worker-1", time.Now().UTC().Add(2*time.Minute)); err != nil || rows != 1 {
		t.Fatalf("reclaim for second attempt: rows=%d err=%v", rows, err)
	}
	before = time.Now().UTC()
	failed, err = orch.FailJob(ctx, job.ID, "encoding_error", "ffmpeg exited 1")
	after = time.Now().UTC()
	if err != nil {
		t.Fatalf("second FailJob failed: %v", err)
	}
	if failed.Status != jobs.StatusRetrying || failed.Attempts != 2 {
		t.Fatalf("expected second retrying attempt, got status=%s attempts=%d", failed.Status, failed.Attempts)
	}
	lower = before.Add(2 * time.Minute)
	upper = after.Add(2*time.Minute + time.Second)
	if failed.NextRetryAt.Before(lower) || failed.NextRetryAt.After(upper) {
		t.Fatalf("second retry outside 2m window: %s not in [%s, %s]", failed.NextRetryAt, lower, upper)
	}
}

func TestFailJobExhaustsAttemptBudget(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()
	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)

	var final *jobs.Job
	for attempt := 1; attempt <= job.MaxAttempts; attempt++ {
		claimAt := time.Now().UTC().Add(time.Duration(attempt) * 10 * time.Minute)
		if rows, err := store.Claim(ctx, job.ID, "worker-1", claimAt); err != nil || rows != 1 {
			t.Fatalf("claim attempt %d: rows=%d err=%v", attempt, rows, err)
		}
		var err error
		final, err = orch.FailJob(ctx, job.ID, "encoding_error", "ffmpeg exited 1")
		if err != nil {
			t.Fatalf("FailJob attempt %d: %v", attempt, err)
		}
	}

	if final.Status != jobs.StatusFailed {
		t.Fatalf("expected failed status after budget spent, got %s", final.Status)
	}
	if final.Attempts != final.MaxAttempts {
		t.Fatalf("expected attempts == max, got %d/%d", final.Attempts, final.MaxAttempts)
	}
	if final.NextRetryAt != nil {
		t.Fatal("failed jobs must not carry a retry deadline")
	}
	if final.ErrorCode != "encoding_error" || final.ErrorMessage == "" {
		t.Fatalf("expected error fields set, got code=%q message=%q", final.ErrorCode, final.ErrorMessage)
	}
	if final.OutputMetadata != nil {
		t.Fatal("failed jobs must not carry output metadata")
	}

	_, err := orch.FailJob(ctx, job.ID, "encoding_error", "again")
	if !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on failed job, got %v", err)
	}
}

func TestCompleteJobRecordsOutputOnly(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()
	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)

	if _, err := orch.MarkProcessing(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if err := orch.UpdateProgress(ctx, job.ID, 55, "Transcoding 720p"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}

	output := jobs.OutputMetadata{
		ManifestBucket:  "telecine-publish-test",
		ManifestKey:     "episodes/ep/hls/master.m3u8",
		DurationSeconds: 93.5,
		RenditionBytes:  map[string]int64{"720p": 1024, "480p": 512},
	}
	done, err := orch.CompleteJob(ctx, job.ID, output)
	if err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed status, got %s", done.Status)
	}
	if done.Progress != 100 {
		t.Fatalf("expected progress forced to 100, got %d", done.Progress)
	}
	if done.OutputMetadata == nil || done.OutputMetadata.ManifestKey != output.ManifestKey {
		t.Fatalf("expected output metadata persisted, got %#v", done.OutputMetadata)
	}
	if done.OutputMetadata.RenditionBytes["720p"] != 1024 {
		t.Fatalf("expected rendition sizes persisted, got %#v", done.OutputMetadata.RenditionBytes)
	}
	if done.ErrorCode != "" || done.ErrorMessage != "" || done.NextRetryAt != nil {
		t.Fatal("completed jobs must not carry error fields or a retry deadline")
	}
	if done.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}

	_, err = orch.CompleteJob(ctx, job.ID, output)
	if !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on double complete, got %v", err)
	}
}

func TestCompleteJobRejectsEmptyOutput(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()
	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)

	if _, err := orch.MarkProcessing(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	_, err := orch.CompleteJob(ctx, job.ID, jobs.OutputMetadata{})
	if !errors.Is(err, jobs.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for empty output, got %v", err)
	}

	// The row must still be processing so the worker can report the real
	// outcome; a completed job with neither output nor error would break
	// the terminal-state contract.
	current, err := orch.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if current.Status != jobs.StatusProcessing {
		t.Fatalf("expected job to stay processing, got %s", current.Status)
	}
	if current.OutputMetadata != nil || current.ErrorCode != "" {
		t.Fatalf("expected no terminal fields, got output=%#v code=%q", current.OutputMetadata, current.ErrorCode)
	}
}

func TestUpdateProgressClampsAndIgnoresFinishedJobs(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()
	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)

	if _, err := orch.MarkProcessing(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	if err := orch.UpdateProgress(ctx, job.ID, 150, "Overflow"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	current, err := orch.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if current.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %d", current.Progress)
	}

	if err := orch.UpdateProgress(ctx, job.ID, -10, "Underflow"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	current, err = orch.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if current.Progress != 0 {
		t.Fatalf("expected clamp to 0, got %d", current.Progress)
	}

	if _, err := orch.CompleteJob(ctx, job.ID, jobs.OutputMetadata{ManifestKey: "x/master.m3u8"}); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	if err := orch.UpdateProgress(ctx, job.ID, 10, "Late update"); err != nil {
		t.Fatalf("expected silent drop on finished job, got %v", err)
	}
	current, err = orch.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if current.Progress != 100 || current.Stage != "Completed" {
		t.Fatalf("finished job must stay untouched, got progress=%d stage=%q", current.Progress, current.Stage)
	}

	if err := orch.UpdateProgress(ctx, "missing-job", 10, "x"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing job, got %v", err)
	}
}

func TestCancelJobLifecycle(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()

	queued := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)
	cancelled, err := orch.CancelJob(ctx, queued.ID)
	if err != nil {
		t.Fatalf("CancelJob on queued failed: %v", err)
	}
	if cancelled.Status != jobs.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	processing := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)
	if _, err := orch.MarkProcessing(ctx, processing.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	cancelled, err = orch.CancelJob(ctx, processing.ID)
	if err != nil {
		t.Fatalf("CancelJob on processing failed: %v", err)
	}
	if cancelled.Status != jobs.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Status)
	}

	// Workers that lose a cancellation race see an invalid transition.
	if _, err := orch.CompleteJob(ctx, processing.ID, jobs.OutputMetadata{ManifestKey: "m"}); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition completing cancelled job, got %v", err)
	}
	if _, err := orch.FailJob(ctx, processing.ID, "encoding_error", "late"); !errors.Is(err, jobs.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition failing cancelled job, got %v", err)
	}

	completed := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)
	if _, err := orch.MarkProcessing(ctx, completed.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if _, err := orch.CompleteJob(ctx, completed.ID, jobs.OutputMetadata{ManifestKey: "m"}); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	if _, err := orch.CancelJob(ctx, completed.ID); !errors.Is(err, jobs.ErrInvalidJobState) {
		t.Fatalf("expected ErrInvalidJobState cancelling completed job, got %v", err)
	}

	if _, err := orch.CancelJob(ctx, "missing-job"); !errors.Is(err, jobs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTerminalCallbacksFire(t *testing.T) {
	events := make(chan notify.Event, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read callback body: %v", err)
		}
		var event notify.Event
		if err := json.Unmarshal(body, &event); err != nil {
			t.Errorf("decode callback body: %v", err)
		}
		events <- event
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithCallbackURL(server.URL))
	store := testsupport.MustOpenStore(t, cfg)
	orch := jobs.NewOrchestratorWithNotifier(cfg, store, logging.NewNop(), notify.NewService(cfg))
	ctx := context.Background()

	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)
	if _, err := orch.MarkProcessing(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	if _, err := orch.CompleteJob(ctx, job.ID, jobs.OutputMetadata{ManifestKey: "m"}); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	event := <-events
	if event.Kind != notify.KindJobCompleted || event.JobID != job.ID {
		t.Fatalf("unexpected completion event: %#v", event)
	}

	failing := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)
	for attempt := 1; attempt <= failing.MaxAttempts; attempt++ {
		claimAt := time.Now().UTC().Add(time.Duration(attempt) * 10 * time.Minute)
		if rows, err := store.Claim(ctx, failing.ID, "worker-1", claimAt); err != nil || rows != 1 {
			t.Fatalf("claim attempt %d: rows=%d err=%v", attempt, rows, err)
		}
		if _, err := orch.FailJob(ctx, failing.ID, "encoding_error", "boom"); err != nil {
			t.Fatalf("FailJob attempt %d: %v", attempt, err)
		}
	}

	event = <-events
	if event.Kind != notify.KindJobFailed || event.JobID != failing.ID {
		t.Fatalf("unexpected failure event: %#v", event)
	}
	if event.ErrorCode != "encoding_error" {
		t.Fatalf("expected error code in failure event, got %q", event.ErrorCode)
	}

	select {
	case extra := <-events:
		t.Fatalf("unexpected extra callback: %#v", extra)
	default:
	}
}

func TestCallbackFailureDoesNotFailJob(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no thanks", http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithCallbackURL(server.URL))
	store := testsupport.MustOpenStore(t, cfg)
	orch := jobs.NewOrchestratorWithNotifier(cfg, store, logging.NewNop(), notify.NewService(cfg))
	ctx := context.Background()

	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)
	if _, err := orch.MarkProcessing(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	done, err := orch.CompleteJob(ctx, job.ID, jobs.OutputMetadata{ManifestKey: "m"})
	if err != nil {
		t.Fatalf("CompleteJob must succeed despite callback failure: %v", err)
	}
	if done.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed status, got %s", done.Status)
	}
}

func TestReclaimStaleRequeuesLostJobs(t *testing.T) {
	orch, store := newOrchestrator(t)
	ctx := context.Background()
	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)

	if _, err := orch.MarkProcessing(ctx, job.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	count, err := orch.ReclaimStale(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected live worker to keep its job, reclaimed %d", count)
	}

	count, err = orch.ReclaimStale(ctx, 0)
	if err != nil {
		t.Fatalf("ReclaimStale failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one reclaimed job, got %d", count)
	}

	pending, err := orch.ListPendingJobs(ctx, nil, 0)
	if err != nil {
		t.Fatalf("ListPendingJobs failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != job.ID {
		t.Fatalf("expected reclaimed job to be eligible again, got %d jobs", len(pending))
	}
	if pending[0].ErrorCode != jobs.CodeReclaimed {
		t.Fatalf("expected reclaimed jobs to carry %q, got %q", jobs.CodeReclaimed, pending[0].ErrorCode)
	}
	if pending[0].Attempts != 0 {
		t.Fatalf("reclaim must not consume an attempt, got %d", pending[0].Attempts)
	}

	// A successful rerun clears the reclaim marker.
	if _, err := orch.MarkProcessing(ctx, job.ID, "worker-2"); err != nil {
		t.Fatalf("MarkProcessing after reclaim failed: %v", err)
	}
	done, err := orch.CompleteJob(ctx, job.ID, jobs.OutputMetadata{ManifestKey: "m"})
	if err != nil {
		t.Fatalf("CompleteJob after reclaim failed: %v", err)
	}
	if done.ErrorCode != "" || done.ErrorMessage != "" {
		t.Fatalf("expected completion to clear the reclaim marker, got code=%q", done.ErrorCode)
	}
}
