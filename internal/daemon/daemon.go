package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"telecine/internal/config"
	"telecine/internal/deps"
	"telecine/internal/jobs"
	"telecine/internal/logging"
	"telecine/internal/staging"
	"telecine/internal/upload"
)

// Components carries the collaborators the daemon supervises. Store,
// Orchestrator, and Pool are required; Uploads, Signer, and Presigner are
// optional and the matching IPC operations fail cleanly when absent.
type Components struct {
	Store        *jobs.Store
	Orchestrator *jobs.Orchestrator
	Pool         Pool
	Uploads      *upload.Manager
	Signer       URLSigner
	Presigner    Presigner
}

// Pool is the worker pool surface the daemon drives.
type Pool interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	Workers() int
}

// Daemon coordinates background processing and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *jobs.Store
	orch      *jobs.Orchestrator
	pool      Pool
	uploads   *upload.Manager
	signer    URLSigner
	presigner Presigner
	cleaner   *staging.Cleaner

	logPath  string
	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workers      int
	JobStats     map[jobs.Status]int
	JobDBPath    string
	LockFilePath string
	LogPath      string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, logPath string, comps Components) (*Daemon, error) {
	if cfg == nil || comps.Store == nil || comps.Orchestrator == nil || comps.Pool == nil {
		return nil, errors.New("daemon requires config, store, orchestrator, and worker pool")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "telecined.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     comps.Store,
		orch:      comps.Orchestrator,
		pool:      comps.Pool,
		uploads:   comps.Uploads,
		signer:    comps.Signer,
		presigner: comps.Presigner,
		cleaner:   staging.NewCleaner(cfg, comps.Store, logger),
		logPath:   logPath,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the worker pool and the
// maintenance loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another telecine daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.pool.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start worker pool: %w", err)
	}
	d.cancel = cancel

	d.wg.Add(1)
	go d.maintenanceLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("telecine daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.pool.Workers()),
	)
	return nil
}

// Stop halts background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pool.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("telecine daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("job stats unavailable", logging.Error(err))
		stats = map[jobs.Status]int{}
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workers:      d.pool.Workers(),
		JobStats:     stats,
		JobDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Dependencies: deps.CheckBinaries(deps.Runtime(d.cfg)),
	}
}

// SubmitJob validates and enqueues a new job.
func (d *Daemon) SubmitJob(ctx context.Context, req jobs.SubmitRequest) (*jobs.Job, error) {
	return d.orch.CreateJob(ctx, req)
}

// GetJob fetches one job by ID.
func (d *Daemon) GetJob(ctx context.Context, id string) (*jobs.Job, error) {
	return d.orch.GetJob(ctx, id)
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []jobs.Status) ([]*jobs.Job, error) {
	return d.store.List(ctx, statuses...)
}

// CancelJob stops a job that has not finished.
func (d *Daemon) CancelJob(ctx context.Context, id string) (*jobs.Job, error) {
	return d.orch.CancelJob(ctx, id)
}

// RetryJobs requeues failed jobs; with no IDs every failed job is retried.
func (d *Daemon) RetryJobs(ctx context.Context, ids []string) (int64, error) {
	return d.orch.RetryJobs(ctx, ids...)
}

// ClearCompleted removes completed job rows and returns the count.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// JobHealth returns aggregate queue diagnostics.
func (d *Daemon) JobHealth(ctx context.Context) (jobs.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed job database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (jobs.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// errUploadsUnavailable reports that no upload manager was wired in, which
// happens when object storage is not configured.
var errUploadsUnavailable = errors.New("upload manager unavailable")

// UploadInitiate opens a multipart upload session.
func (d *Daemon) UploadInitiate(ctx context.Context, req upload.InitiateRequest) (*upload.Initiated, error) {
	if d.uploads == nil {
		return nil, errUploadsUnavailable
	}
	return d.uploads.Initiate(ctx, req)
}

// UploadComplete assembles a finished multipart upload.
func (d *Daemon) UploadComplete(ctx context.Context, uploadID, key string, parts []upload.PartInput) (*upload.Session, error) {
	if d.uploads == nil {
		return nil, errUploadsUnavailable
	}
	return d.uploads.Complete(ctx, uploadID, key, parts)
}

// UploadAbort releases a multipart upload session.
func (d *Daemon) UploadAbort(ctx context.Context, uploadID, key string) error {
	if d.uploads == nil {
		return errUploadsUnavailable
	}
	return d.uploads.Abort(ctx, uploadID, key)
}

// UploadPresign issues a single presigned PUT for a small file.
func (d *Daemon) UploadPresign(ctx context.Context, req upload.InitiateRequest) (*upload.DirectUpload, error) {
	if d.uploads == nil {
		return nil, errUploadsUnavailable
	}
	return d.uploads.PresignDirect(ctx, req)
}
