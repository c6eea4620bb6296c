package daemon

import (
	"context"
	"time"

	"telecine/internal/logging"
)

const (
	maintenanceInterval = time.Minute
	staleUploadAge      = 24 * time.Hour
	stagingMaxAge       = 24 * time.Hour
)

// maintenanceLoop periodically reclaims abandoned processing jobs, aborts
// stale upload sessions, and sweeps orphaned staging directories. It runs
// until the daemon context is cancelled.
func (d *Daemon) maintenanceLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runMaintenance(ctx)
		}
	}
}

func (d *Daemon) runMaintenance(ctx context.Context) {
	window := time.Duration(d.cfg.Queue.HeartbeatTimeout) * time.Second
	if reclaimed, err := d.orch.ReclaimStale(ctx, window); err != nil {
		d.logger.Warn("stale job reclaim failed", logging.Error(err))
	} else if reclaimed > 0 {
		d.logger.Info("reclaimed stale processing jobs", logging.Int64("count", reclaimed))
	}

	if d.uploads != nil {
		if aborted, err := d.uploads.AbortStale(ctx, staleUploadAge); err != nil {
			d.logger.Warn("stale upload sweep failed", logging.Error(err))
		} else if aborted > 0 {
			d.logger.Info("aborted stale upload sessions", logging.Int("count", aborted))
		}
	}

	if removed, err := d.cleaner.Sweep(ctx, stagingMaxAge); err != nil {
		d.logger.Warn("staging sweep failed", logging.Error(err))
	} else if removed > 0 {
		d.logger.Info("removed orphaned staging directories", logging.Int("count", removed))
	}
}
