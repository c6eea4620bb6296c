package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"telecine/internal/jobs"
	"telecine/internal/logging"
	"telecine/internal/publish"
	"telecine/internal/transcode"
)

// Progress budget per phase: staging 0-5, encoding 5-90, publishing 90-100.
const (
	encodeProgressFloor = 5
	encodeProgressSpan  = 85
	publishProgress     = 90
)

const maxErrorMessage = 500

// process runs one claimed job from staging through its terminal
// transition. Pipeline failures are recorded on the job and return nil;
// the returned error covers shutdown and bookkeeping faults only.
func (p *Pool) process(ctx context.Context, logger *slog.Logger, job *jobs.Job) error {
	jobLogger := logger.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldJobType, string(job.Type)),
	)
	jobLogger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("attempt", job.Attempts+1),
	)
	started := time.Now()

	jobCtx, stopJob := context.WithCancel(ctx)
	defer stopJob()

	var cancelled atomic.Bool
	var watchers sync.WaitGroup
	watchers.Add(2)
	go p.heartbeatLoop(jobCtx, &watchers, job.ID, jobLogger)
	go p.watchCancellation(jobCtx, &watchers, job.ID, stopJob, &cancelled, jobLogger)

	output, execErr := p.execute(jobCtx, job)
	stopJob()
	watchers.Wait()

	switch {
	case cancelled.Load():
		// The row is already terminal; nothing to report.
		jobLogger.Info("job cancelled during processing",
			logging.String(logging.FieldEventType, "job_cancelled"),
		)
		return nil
	case execErr == nil:
		if _, err := p.orch.CompleteJob(ctx, job.ID, output); err != nil {
			return fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		jobLogger.Info("job finished",
			logging.String(logging.FieldEventType, "job_complete"),
			logging.Duration("elapsed", time.Since(started)),
		)
		return nil
	case errors.Is(execErr, context.Canceled) && ctx.Err() != nil:
		// Shutdown: leave the row processing so heartbeat reclaim hands
		// the job to the next daemon run.
		jobLogger.Info("job interrupted by shutdown")
		return context.Canceled
	default:
		code := failureCode(execErr)
		jobLogger.Warn("job attempt failed",
			logging.String("error_code", code),
			logging.Error(execErr),
		)
		if _, err := p.orch.FailJob(ctx, job.ID, code, failureMessage(execErr)); err != nil {
			return fmt.Errorf("record job failure %s: %w", job.ID, err)
		}
		return nil
	}
}

// execute stages the source, plans the encode, runs it, and publishes the
// result. The returned metadata is meaningful only when err is nil.
func (p *Pool) execute(ctx context.Context, job *jobs.Job) (jobs.OutputMetadata, error) {
	var output jobs.OutputMetadata

	workDir := filepath.Join(p.cfg.Paths.StagingDir, job.ID)
	sourceDir := filepath.Join(workDir, "source")
	outputDir := filepath.Join(workDir, "output")
	for _, dir := range []string{sourceDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return output, &stepError{code: jobs.CodeInternal, err: fmt.Errorf("create staging dir: %w", err)}
		}
	}
	defer os.RemoveAll(workDir)

	p.reportProgress(ctx, job.ID, 0, "Fetching source")
	primary, err := p.fetchSource(ctx, job.Source.Bucket, job.Source.Key, sourceDir, "")
	if err != nil {
		return output, err
	}
	extras, err := p.fetchConcatSources(ctx, job, sourceDir)
	if err != nil {
		return output, err
	}

	p.reportProgress(ctx, job.ID, encodeProgressFloor, "Inspecting source")
	src, err := p.inspectSource(ctx, primary)
	if err != nil {
		return output, err
	}
	concat := make([]transcode.Source, 0, len(extras))
	for _, extra := range extras {
		inspected, err := p.inspectSource(ctx, extra)
		if err != nil {
			return output, err
		}
		concat = append(concat, inspected)
	}

	plan, err := p.planner.Build(transcode.Request{
		Job:           job,
		Source:        src,
		WorkDir:       outputDir,
		ConcatSources: concat,
	})
	if err != nil {
		return output, &stepError{code: jobs.CodeInternal, err: err}
	}

	if err := p.encoder.Run(ctx, plan, func(fraction float64, stage string) {
		p.reportProgress(ctx, job.ID, encodeProgressFloor+int(fraction*encodeProgressSpan), stage)
	}); err != nil {
		return output, err
	}

	p.reportProgress(ctx, job.ID, publishProgress, "Publishing output")
	bucket, prefix := p.publishLocation(job)
	result, err := p.publisher.Publish(ctx, outputDir, bucket, prefix, plan.Artifact)
	if err != nil {
		return output, err
	}

	output = jobs.OutputMetadata{
		ManifestBucket:  bucket,
		ManifestKey:     result.PrimaryKey,
		DurationSeconds: planDuration(plan),
		RenditionBytes:  result.ComponentBytes,
	}
	return output, nil
}

// fetchSource downloads one object into the staging directory and returns
// the local path. A non-empty name overrides the basename derived from the
// key.
func (p *Pool) fetchSource(ctx context.Context, bucket, key, destDir, name string) (string, error) {
	if name == "" {
		name = path.Base(key)
		if name == "" || name == "." || name == "/" {
			name = "source"
		}
	}
	dest := filepath.Join(destDir, name)
	if _, err := p.storage.Download(ctx, bucket, key, dest); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &stepError{code: jobs.CodeStorage, err: fmt.Errorf("fetch %s/%s: %w", bucket, key, err)}
	}
	return dest, nil
}

// fetchConcatSources stages the extra inputs of a concat job in stitch
// order. The numbered local names keep order stable regardless of key
// basenames.
func (p *Pool) fetchConcatSources(ctx context.Context, job *jobs.Job, destDir string) ([]string, error) {
	if job.Type != jobs.TypeConcatVideos {
		return nil, nil
	}
	decoded, err := job.Config()
	if err != nil {
		return nil, &stepError{code: jobs.CodeInternal, err: err}
	}
	concat, ok := decoded.(jobs.ConcatConfig)
	if !ok {
		return nil, &stepError{code: jobs.CodeInternal, err: fmt.Errorf("unexpected config type %T for %s", decoded, job.Type)}
	}

	paths := make([]string, 0, len(concat.SourceKeys))
	for i, key := range concat.SourceKeys {
		name := fmt.Sprintf("part-%02d%s", i+1, path.Ext(key))
		local, err := p.fetchSource(ctx, job.Source.Bucket, key, destDir, name)
		if err != nil {
			return nil, err
		}
		paths = append(paths, local)
	}
	return paths, nil
}

func (p *Pool) inspectSource(ctx context.Context, localPath string) (transcode.Source, error) {
	result, err := p.inspect(ctx, p.probeBinary, localPath)
	if err != nil {
		if ctx.Err() != nil {
			return transcode.Source{}, ctx.Err()
		}
		return transcode.Source{}, &stepError{code: jobs.CodeProbe, err: err}
	}
	width, height := result.Dimensions()
	return transcode.Source{
		Path:            localPath,
		Width:           width,
		Height:          height,
		DurationSeconds: result.DurationSeconds(),
	}, nil
}

// publishLocation prefers the job's explicit output location and falls
// back to the catalog layout.
func (p *Pool) publishLocation(job *jobs.Job) (string, string) {
	bucket, prefix := p.layout.PublishLocation(job.Source.Type, job.Source.ID)
	if job.Output.Bucket != "" {
		bucket = job.Output.Bucket
	}
	if job.Output.Prefix != "" {
		prefix = job.Output.Prefix
	}
	return bucket, prefix
}

func (p *Pool) reportProgress(ctx context.Context, jobID string, percent int, stage string) {
	if err := p.orch.UpdateProgress(ctx, jobID, percent, stage); err != nil && ctx.Err() == nil {
		p.logger.Debug("progress update failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
		)
	}
}

func (p *Pool) heartbeatLoop(ctx context.Context, wg *sync.WaitGroup, jobID string, logger *slog.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.orch.Heartbeat(ctx, jobID); err != nil && ctx.Err() == nil {
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}

// watchCancellation cancels the pipeline context when an operator cancels
// the job mid-flight.
func (p *Pool) watchCancellation(ctx context.Context, wg *sync.WaitGroup, jobID string, stop context.CancelFunc, cancelled *atomic.Bool, logger *slog.Logger) {
	defer wg.Done()
	ticker := time.NewTicker(p.cancelInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current, err := p.orch.GetJob(ctx, jobID)
			if err != nil {
				if ctx.Err() == nil {
					logger.Debug("cancellation check failed", logging.Error(err))
				}
				continue
			}
			if current.Status == jobs.StatusCancelled {
				cancelled.Store(true)
				stop()
				return
			}
		}
	}
}

// planDuration reports the media duration a plan covers. Concat plans sum
// their inputs inside the single invocation; still-image outputs report 0.
func planDuration(plan *transcode.Plan) float64 {
	longest := 0.0
	for _, inv := range plan.Invocations {
		if inv.DurationSeconds > longest {
			longest = inv.DurationSeconds
		}
	}
	return longest
}

// stepError tags a pipeline failure with the stable code recorded on the
// job row.
type stepError struct {
	code string
	err  error
}

func (e *stepError) Error() string { return e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

// failureCode maps a pipeline error to a stable operator-facing code.
func failureCode(err error) string {
	var step *stepError
	if errors.As(err, &step) {
		return step.code
	}
	var pubErr *publish.Error
	if errors.As(err, &pubErr) {
		return jobs.CodePublish
	}
	var encErr *transcode.EncodingError
	if errors.As(err, &encErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			return jobs.CodeTimeout
		}
		return jobs.CodeEncoding
	}
	return jobs.CodeInternal
}

// failureMessage trims an error chain to a storable message.
func failureMessage(err error) string {
	msg := strings.TrimSpace(err.Error())
	if len(msg) > maxErrorMessage {
		msg = strings.ToValidUTF8(msg[:maxErrorMessage], "")
	}
	return msg
}
