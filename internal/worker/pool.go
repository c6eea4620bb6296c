package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"telecine/internal/config"
	"telecine/internal/jobs"
	"telecine/internal/logging"
	"telecine/internal/media"
	"telecine/internal/probe"
	"telecine/internal/publish"
	"telecine/internal/transcode"
)

// claimBatch bounds how many pending jobs one poll inspects. Claim races
// against other workers make a small overshoot useful.
const claimBatch = 5

// cancelCheckInterval is how often a busy worker re-reads its job row to
// notice an operator cancellation.
const cancelCheckInterval = 5 * time.Second

// Storage covers the object store reads the pipeline performs.
type Storage interface {
	Download(ctx context.Context, bucket, key, destPath string) (int64, error)
}

// Encoder runs a transcode plan against the engine.
type Encoder interface {
	Run(ctx context.Context, plan *transcode.Plan, progress transcode.ProgressFunc) error
}

// Publisher pushes a finished output tree to the publish bucket.
type Publisher interface {
	Publish(ctx context.Context, localDir, bucket, prefix, primary string) (*publish.Result, error)
}

// Pool executes queued jobs with a fixed number of workers.
type Pool struct {
	cfg       *config.Config
	orch      *jobs.Orchestrator
	storage   Storage
	encoder   Encoder
	publisher Publisher
	planner   *transcode.Planner
	layout    *media.Layout
	logger    *slog.Logger

	workerCount       int
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	cancelInterval    time.Duration
	probeBinary       string

	// inspect probes staged sources. Tests override it.
	inspect func(ctx context.Context, binary, path string) (probe.Result, error)

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool constructs a worker pool over the given queue and pipeline
// dependencies.
func NewPool(cfg *config.Config, orch *jobs.Orchestrator, storage Storage, encoder Encoder, publisher Publisher, logger *slog.Logger) *Pool {
	workers := cfg.Queue.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	poll := time.Duration(cfg.Queue.PollInterval) * time.Second
	if poll <= 0 {
		poll = 5 * time.Second
	}
	heartbeat := time.Duration(cfg.Queue.HeartbeatInterval) * time.Second
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Pool{
		cfg:               cfg,
		orch:              orch,
		storage:           storage,
		encoder:           encoder,
		publisher:         publisher,
		planner:           transcode.NewPlanner(cfg),
		layout:            media.NewLayout(cfg.Storage.IngestBucket, cfg.Storage.PublishBucket),
		logger:            logging.NewComponentLogger(logger, "worker"),
		workerCount:       workers,
		pollInterval:      poll,
		heartbeatInterval: heartbeat,
		cancelInterval:    cancelCheckInterval,
		probeBinary:       cfg.FFprobeBinary(),
		inspect:           probe.Inspect,
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start(ctx context.Context) error {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "telecine"
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("worker pool already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(p.workerCount)
	p.mu.Unlock()

	for n := 1; n <= p.workerCount; n++ {
		workerID := fmt.Sprintf("%s-%d-%d", host, os.Getpid(), n)
		go p.runWorker(runCtx, workerID)
	}
	p.logger.Info("worker pool started", logging.Int("workers", p.workerCount))
	return nil
}

// Stop cancels in-flight work and waits for every worker to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Running reports whether the pool is processing.
func (p *Pool) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workerCount
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	defer p.wg.Done()
	logger := p.logger.With(logging.String(logging.FieldWorkerID, workerID))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := p.claimNext(ctx, workerID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to fetch pending jobs",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"),
			)
			p.waitForWork(ctx)
			continue
		}
		if job == nil {
			p.waitForWork(ctx)
			continue
		}

		if err := p.process(ctx, logger, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("job processing faulted",
				logging.Error(err),
				logging.String(logging.FieldJobID, job.ID),
			)
		}
	}
}

// claimNext scans eligible jobs in priority order and claims the first one
// another worker has not taken in the meantime.
func (p *Pool) claimNext(ctx context.Context, workerID string) (*jobs.Job, error) {
	pending, err := p.orch.ListPendingJobs(ctx, nil, claimBatch)
	if err != nil {
		return nil, err
	}
	for _, candidate := range pending {
		claimed, err := p.orch.MarkProcessing(ctx, candidate.ID, workerID)
		if err != nil {
			if errors.Is(err, jobs.ErrInvalidTransition) || errors.Is(err, jobs.ErrNotFound) {
				continue
			}
			return nil, err
		}
		return claimed, nil
	}
	return nil, nil
}

func (p *Pool) waitForWork(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.pollInterval):
	}
}
