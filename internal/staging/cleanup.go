// Package staging sweeps the scratch space workers use while executing
// jobs. Workers remove their own directory on the way out, so anything
// left behind belongs to a crashed run and only wastes disk.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"telecine/internal/config"
	"telecine/internal/jobs"
	"telecine/internal/logging"
)

// Cleaner removes abandoned per-job work directories.
type Cleaner struct {
	dir    string
	store  *jobs.Store
	logger *slog.Logger
}

// NewCleaner builds a cleaner over the configured staging directory.
func NewCleaner(cfg *config.Config, store *jobs.Store, logger *slog.Logger) *Cleaner {
	return &Cleaner{
		dir:    cfg.Paths.StagingDir,
		store:  store,
		logger: logging.NewComponentLogger(logger, "staging"),
	}
}

// Sweep removes work directories older than olderThan whose job is no
// longer processing. Directories named after live processing jobs are kept
// regardless of age; a long encode legitimately holds its scratch space.
func (c *Cleaner) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read staging dir: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if c.jobActive(ctx, entry.Name()) {
			continue
		}

		target := filepath.Join(c.dir, entry.Name())
		if err := os.RemoveAll(target); err != nil {
			c.logger.Warn("failed to remove abandoned work dir",
				logging.String("path", target),
				logging.Error(err),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		c.logger.Info("abandoned work dirs removed", logging.Int("count", removed))
	}
	return removed, nil
}

// jobActive reports whether the directory name belongs to a job that is
// still processing. Unknown names are inactive; scratch dirs are always
// named by job ID.
func (c *Cleaner) jobActive(ctx context.Context, name string) bool {
	if c.store == nil {
		return false
	}
	job, err := c.store.GetByID(ctx, name)
	if err != nil {
		// Keep the directory when in doubt; the next sweep retries.
		return true
	}
	return job != nil && job.Status == jobs.StatusProcessing
}
