package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"log/slog"

	"telecine/internal/api"
	"telecine/internal/daemon"
	"telecine/internal/jobs"
	"telecine/internal/logging"
	"telecine/internal/logs"
	"telecine/internal/media"
	"telecine/internal/upload"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Telecine", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun telecine stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.PID = os.Getpid()
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Workers = status.Workers
	resp.JobDBPath = status.JobDBPath
	resp.LockPath = status.LockFilePath
	resp.LogPath = status.LogPath
	resp.JobStats = make(map[string]int, len(status.JobStats))
	for k, v := range status.JobStats {
		resp.JobStats[string(k)] = v
	}
	if len(status.Dependencies) > 0 {
		resp.Dependencies = make([]DependencyStatus, 0, len(status.Dependencies))
		for _, dep := range status.Dependencies {
			resp.Dependencies = append(resp.Dependencies, DependencyStatus{
				Name:        dep.Name,
				Command:     dep.Command,
				Description: dep.Description,
				Optional:    dep.Optional,
				Available:   dep.Available,
				Detail:      dep.Detail,
			})
		}
	}
	return nil
}

func (s *service) JobSubmit(req JobSubmitRequest, resp *JobSubmitResponse) error {
	s.log().Debug("job submit requested",
		logging.String(logging.FieldJobType, req.Type),
		logging.String("source_id", req.SourceID))
	job, err := s.daemon.SubmitJob(s.ctx, jobs.SubmitRequest{
		Type: jobs.JobType(req.Type),
		Source: media.SourceRef{
			Type:   media.SourceType(req.SourceType),
			ID:     req.SourceID,
			Bucket: req.SourceBucket,
			Key:    req.SourceKey,
		},
		Output: media.OutputLocation{
			Bucket: req.OutputBucket,
			Prefix: req.OutputPrefix,
		},
		Config:      req.Config,
		Priority:    req.Priority,
		MaxAttempts: req.MaxAttempts,
		RequestedBy: req.RequestedBy,
	})
	if err != nil {
		return err
	}
	resp.Job = api.FromJob(job)
	s.log().Info("job accepted via IPC",
		logging.String(logging.FieldEventType, "job_submit"),
		logging.String(logging.FieldJobID, job.ID))
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	statuses := make([]jobs.Status, 0, len(req.Statuses))
	for _, status := range req.Statuses {
		parsed, err := jobs.ParseStatus(status)
		if err != nil {
			continue
		}
		statuses = append(statuses, parsed)
	}
	items, err := s.daemon.ListJobs(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Jobs = api.FromJobs(items)
	return nil
}

func (s *service) JobDescribe(req JobDescribeRequest, resp *JobDescribeResponse) error {
	if req.ID == "" {
		return errors.New("job id is required")
	}
	job, err := s.daemon.GetJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = api.FromJob(job)
	return nil
}

func (s *service) JobCancel(req JobCancelRequest, resp *JobCancelResponse) error {
	if req.ID == "" {
		return errors.New("job id is required")
	}
	s.log().Debug("job cancel requested", logging.String(logging.FieldJobID, req.ID))
	job, err := s.daemon.CancelJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Job = api.FromJob(job)
	s.log().Info("job cancelled via IPC",
		logging.String(logging.FieldEventType, "job_cancel"),
		logging.String(logging.FieldJobID, req.ID))
	return nil
}

func (s *service) JobRetry(req JobRetryRequest, resp *JobRetryResponse) error {
	s.log().Debug("job retry requested", logging.Int("job_count", len(req.IDs)))
	updated, err := s.daemon.RetryJobs(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("jobs requeued",
		logging.String(logging.FieldEventType, "job_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) JobClearCompleted(_ JobClearCompletedRequest, resp *JobClearCompletedResponse) error {
	s.log().Debug("job clear completed requested")
	removed, err := s.daemon.ClearCompleted(s.ctx)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.log().Info("completed jobs cleared",
		logging.String(logging.FieldEventType, "job_clear_completed"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) JobHealth(_ JobHealthRequest, resp *JobHealthResponse) error {
	health, err := s.daemon.JobHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Queued = health.Queued
	resp.Processing = health.Processing
	resp.Retrying = health.Retrying
	resp.Completed = health.Completed
	resp.Failed = health.Failed
	resp.Cancelled = health.Cancelled
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalJobs = health.TotalJobs
	resp.Error = health.Error
	if err != nil {
		return err
	}
	return nil
}

func (s *service) UploadInitiate(req UploadInitiateRequest, resp *UploadInitiateResponse) error {
	s.log().Debug("upload initiate requested",
		logging.String("source_id", req.SourceID),
		logging.Int64("total_bytes", req.TotalBytes))
	initiated, err := s.daemon.UploadInitiate(s.ctx, upload.InitiateRequest{
		SourceType:  media.SourceType(req.SourceType),
		SourceID:    req.SourceID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		TotalBytes:  req.TotalBytes,
	})
	if err != nil {
		return err
	}
	resp.SessionID = initiated.SessionID
	resp.UploadID = initiated.UploadID
	resp.Bucket = initiated.Bucket
	resp.Key = initiated.Key
	resp.PartSize = initiated.PartSize
	resp.PartCount = initiated.PartCount
	resp.LastPartSize = initiated.LastPartSize
	resp.ExpiresAt = initiated.ExpiresAt.UTC().Format(time.RFC3339)
	resp.PartURLs = make([]UploadPartURL, 0, len(initiated.PartURLs))
	for _, part := range initiated.PartURLs {
		resp.PartURLs = append(resp.PartURLs, UploadPartURL{Number: part.Number, URL: part.URL})
	}
	s.log().Info("upload session opened via IPC",
		logging.String(logging.FieldEventType, "upload_initiate"),
		logging.String("session_id", initiated.SessionID))
	return nil
}

func (s *service) UploadComplete(req UploadCompleteRequest, resp *UploadCompleteResponse) error {
	if req.UploadID == "" {
		return errors.New("upload id is required")
	}
	parts := make([]upload.PartInput, 0, len(req.Parts))
	for _, part := range req.Parts {
		parts = append(parts, upload.PartInput{Number: part.Number, ETag: part.ETag})
	}
	session, err := s.daemon.UploadComplete(s.ctx, req.UploadID, req.Key, parts)
	if err != nil {
		return err
	}
	resp.Session = api.FromSession(session)
	s.log().Info("upload completed via IPC",
		logging.String(logging.FieldEventType, "upload_complete"),
		logging.String("session_id", session.ID))
	return nil
}

func (s *service) UploadAbort(req UploadAbortRequest, resp *UploadAbortResponse) error {
	if req.UploadID == "" {
		return errors.New("upload id is required")
	}
	if err := s.daemon.UploadAbort(s.ctx, req.UploadID, req.Key); err != nil {
		return err
	}
	resp.Aborted = true
	s.log().Info("upload aborted via IPC",
		logging.String(logging.FieldEventType, "upload_abort"),
		logging.String("upload_id", req.UploadID))
	return nil
}

func (s *service) UploadPresign(req UploadPresignRequest, resp *UploadPresignResponse) error {
	direct, err := s.daemon.UploadPresign(s.ctx, upload.InitiateRequest{
		SourceType:  media.SourceType(req.SourceType),
		SourceID:    req.SourceID,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		TotalBytes:  req.TotalBytes,
	})
	if err != nil {
		return err
	}
	resp.Bucket = direct.Bucket
	resp.Key = direct.Key
	resp.URL = direct.URL
	resp.ExpiresAt = direct.ExpiresAt.UTC().Format(time.RFC3339)
	return nil
}

func (s *service) SignPlayback(req SignPlaybackRequest, resp *SignPlaybackResponse) error {
	grant, err := s.daemon.GrantPlayback(s.ctx, daemon.GrantRequest{
		SourceType:  media.SourceType(req.SourceType),
		SourceID:    req.SourceID,
		ManifestKey: req.ManifestKey,
		TTL:         time.Duration(req.TTLMinutes) * time.Minute,
		SourceIP:    req.SourceIP,
		Cookies:     req.Cookies,
	})
	if err != nil {
		return err
	}
	resp.Grant = PlaybackGrant{
		URL:          grant.URL,
		Method:       grant.Method,
		CookieDomain: grant.CookieDomain,
		ExpiresAt:    grant.ExpiresAt.UTC().Format(time.RFC3339),
	}
	for _, cookie := range grant.Cookies {
		resp.Grant.Cookies = append(resp.Grant.Cookies, api.PlaybackCookie{Name: cookie.Name, Value: cookie.Value})
	}
	s.log().Info("playback grant issued via IPC",
		logging.String(logging.FieldEventType, "playback_grant"),
		logging.String("method", grant.Method))
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
