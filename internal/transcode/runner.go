package transcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"telecine/internal/config"
	"telecine/internal/logging"
)

// commandContext builds engine commands. Tests override it.
var commandContext = exec.CommandContext

const stderrTailBytes = 4096

// ProgressFunc receives overall plan progress in [0,1] plus the stage the
// engine is in. Fractions never decrease within one Run.
type ProgressFunc func(fraction float64, stage string)

// Runner executes transcode plans against the configured engine binary.
type Runner struct {
	binary  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner constructs a Runner. Each invocation gets the configured hard
// timeout; a run that exceeds it is killed and reported as an encode failure.
func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	timeout := time.Duration(cfg.Transcode.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	return &Runner{
		binary:  cfg.FFmpegBinary(),
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "transcode"),
	}
}

// Run executes every invocation of the plan in order, then writes the master
// playlist for ladder plans. Context cancellation kills the running engine
// process and propagates as the context's error; engine failures and
// timeouts surface as an EncodingError.
func (r *Runner) Run(ctx context.Context, plan *Plan, progress ProgressFunc) error {
	if plan == nil || len(plan.Invocations) == 0 {
		return errors.New("transcode plan is empty")
	}
	report := monotonicReporter(progress)

	completed := 0.0
	for _, inv := range plan.Invocations {
		if err := r.runOne(ctx, inv, completed, report); err != nil {
			return err
		}
		completed += inv.Weight
		report(completed, inv.Stage)
	}

	if len(plan.Renditions) > 0 {
		if err := WriteMasterPlaylist(filepath.Join(plan.WorkDir, MasterPlaylistName), plan.Renditions); err != nil {
			return err
		}
	}
	report(1, "Encoded")
	return nil
}

func (r *Runner) runOne(ctx context.Context, inv Invocation, completed float64, report ProgressFunc) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append([]string{"-hide_banner", "-nostdin", "-y", "-progress", "pipe:1", "-nostats"}, inv.Args...)
	cmd := commandContext(runCtx, r.binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := newTailBuffer(stderrTailBytes)
	cmd.Stderr = stderr

	r.logger.Info("launching encode",
		logging.String("step", inv.Label),
		logging.String("command", r.binary+" "+strings.Join(args, " ")),
	)
	if err := cmd.Start(); err != nil {
		return &EncodingError{Step: inv.Label, Err: fmt.Errorf("start %s: %w", r.binary, err)}
	}
	report(completed, inv.Stage)

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us":
			us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil || us < 0 || inv.DurationSeconds <= 0 {
				continue
			}
			frac := float64(us) / 1e6 / inv.DurationSeconds
			if frac > 1 {
				frac = 1
			}
			report(completed+frac*inv.Weight, inv.Stage)
		case "progress":
			if strings.TrimSpace(value) == "end" {
				report(completed+inv.Weight, inv.Stage)
			}
		}
	}

	waitErr := cmd.Wait()
	if waitErr == nil {
		return nil
	}
	if ctxErr := runCtx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && ctx.Err() == nil {
			return &EncodingError{
				Step:       inv.Label,
				Diagnostic: stderr.String(),
				Err:        fmt.Errorf("%s timed out after %s: %w", r.binary, r.timeout, context.DeadlineExceeded),
			}
		}
		// Caller cancellation; not an engine fault.
		return ctx.Err()
	}
	return &EncodingError{Step: inv.Label, Diagnostic: stderr.String(), Err: waitErr}
}

// monotonicReporter drops fraction regressions so callers observe
// non-decreasing progress even when the engine's clock jitters.
func monotonicReporter(progress ProgressFunc) ProgressFunc {
	last := 0.0
	return func(fraction float64, stage string) {
		if progress == nil {
			return
		}
		if fraction > 1 {
			fraction = 1
		}
		if fraction < last {
			return
		}
		last = fraction
		progress(fraction, stage)
	}
}

// tailBuffer retains the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
