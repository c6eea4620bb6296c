// Package daemonrun boots the daemon process: logging, job store, pipeline
// workers, and the IPC server, then blocks until a shutdown signal arrives.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"telecine/internal/blobstore"
	"telecine/internal/config"
	"telecine/internal/daemon"
	"telecine/internal/ipc"
	"telecine/internal/jobs"
	"telecine/internal/logging"
	"telecine/internal/notify"
	"telecine/internal/publish"
	"telecine/internal/signing"
	"telecine/internal/transcode"
	"telecine/internal/upload"
	"telecine/internal/worker"
)

// Options configures daemon process runtime behavior.
type Options struct {
	SocketPath  string
	LogLevel    string
	Development bool
}

// Run starts the telecine daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("telecine-%s.log", runID))

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update telecine.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.LogDir, "telecined.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := jobs.Open(cfg)
	if err != nil {
		logger.Error("open job store", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notify.NewService(cfg)
	orch := jobs.NewOrchestratorWithNotifier(cfg, store, logger, notifier)

	storage, err := blobstore.New(signalCtx, cfg)
	if err != nil {
		logger.Error("init object storage", logging.Error(err))
		return err
	}

	uploads := upload.NewManager(cfg, upload.NewSessionStore(store.DB()), storage, logger)

	var signer daemon.URLSigner
	if s, signErr := signing.NewSigner(cfg); signErr == nil {
		signer = s
	} else if errors.Is(signErr, signing.ErrKeyUnavailable) {
		logger.Info("playback signing key not configured, falling back to presigned URLs")
	} else {
		logger.Error("init playback signer", logging.Error(signErr))
		return signErr
	}

	encoder := transcode.NewRunner(cfg, logger)
	publisher := publish.NewPublisher(storage, logger)
	pool := worker.NewPool(cfg, orch, storage, encoder, publisher, logger)

	d, err := daemon.New(cfg, logger, logPath, daemon.Components{
		Store:        store,
		Orchestrator: orch,
		Pool:         pool,
		Uploads:      uploads,
		Signer:       signer,
		Presigner:    storage,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = filepath.Join(cfg.Paths.LogDir, "telecined.sock")
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and job database access"),
			logging.String(logging.FieldImpact, "daemon may not process jobs"),
		)
	}

	<-signalCtx.Done()
	logger.Info("telecine daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "telecine.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
