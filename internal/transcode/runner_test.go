package transcode

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"telecine/internal/ladder"
	"telecine/internal/logging"
)

func setEngineHelper(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func newTestRunner(timeout time.Duration) *Runner {
	return &Runner{binary: "ffmpeg", timeout: timeout, logger: logging.NewNop()}
}

type progressRecord struct {
	fraction float64
	stage    string
}

func TestRunReportsMonotonicProgress(t *testing.T) {
	setEngineHelper(t, "progress")
	runner := newTestRunner(time.Minute)

	plan := &Plan{
		WorkDir: t.TempDir(),
		Invocations: []Invocation{
			{Label: "1080p", Stage: "Encoding 1080p", Weight: 0.5, DurationSeconds: 120},
			{Label: "720p", Stage: "Encoding 720p", Weight: 0.5, DurationSeconds: 120},
		},
	}

	var records []progressRecord
	err := runner.Run(context.Background(), plan, func(fraction float64, stage string) {
		records = append(records, progressRecord{fraction, stage})
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(records) == 0 {
		t.Fatal("no progress reported")
	}
	last := -1.0
	for i, rec := range records {
		if rec.fraction < last {
			t.Fatalf("progress regressed at %d: %v after %v", i, rec.fraction, last)
		}
		last = rec.fraction
	}
	final := records[len(records)-1]
	if final.fraction != 1 {
		t.Fatalf("final fraction = %v, want 1", final.fraction)
	}
	if final.stage != "Encoded" {
		t.Fatalf("final stage = %q, want Encoded", final.stage)
	}

	// The helper reports 30s, 60s, 120s of a 120s input, so the first
	// invocation contributes quarter points of its half weight.
	assertFractionSeen(t, records, 0.125)
	assertFractionSeen(t, records, 0.25)
	assertFractionSeen(t, records, 0.625)
}

func assertFractionSeen(t *testing.T, records []progressRecord, want float64) {
	t.Helper()
	for _, rec := range records {
		if math.Abs(rec.fraction-want) < 1e-9 {
			return
		}
	}
	t.Fatalf("fraction %v never reported: %+v", want, records)
}

func TestRunDropsProgressRegressions(t *testing.T) {
	setEngineHelper(t, "regress")
	runner := newTestRunner(time.Minute)

	plan := &Plan{
		WorkDir: t.TempDir(),
		Invocations: []Invocation{
			{Label: "1080p", Stage: "Encoding 1080p", Weight: 1, DurationSeconds: 120},
		},
	}

	var fractions []float64
	if err := runner.Run(context.Background(), plan, func(fraction float64, _ string) {
		fractions = append(fractions, fraction)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	last := -1.0
	for _, f := range fractions {
		if f < last {
			t.Fatalf("regression leaked through: %v", fractions)
		}
		last = f
		if math.Abs(f-0.25) < 1e-9 {
			t.Fatalf("stale engine sample reported: %v", fractions)
		}
	}
}

func TestRunWritesMasterPlaylistForLadderPlans(t *testing.T) {
	setEngineHelper(t, "progress")
	runner := newTestRunner(time.Minute)

	renditions, err := ladder.Build(1280, 720, []string{"720p", "360p"})
	if err != nil {
		t.Fatalf("ladder.Build: %v", err)
	}
	workDir := t.TempDir()
	plan := &Plan{
		WorkDir: workDir,
		Invocations: []Invocation{
			{Label: "720p", Stage: "Encoding 720p", Weight: 1, DurationSeconds: 120},
		},
		Renditions: renditions,
		Artifact:   MasterPlaylistName,
	}

	if err := runner.Run(context.Background(), plan, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(workDir, MasterPlaylistName))
	if err != nil {
		t.Fatalf("read master playlist: %v", err)
	}
	content := string(raw)
	if !strings.Contains(content, "BANDWIDTH=2800000") {
		t.Fatalf("master playlist missing 720p entry: %q", content)
	}
	if !strings.Contains(content, "360p/index.m3u8") {
		t.Fatalf("master playlist missing 360p reference: %q", content)
	}
}

func TestRunWrapsEngineFailure(t *testing.T) {
	setEngineHelper(t, "fail")
	runner := newTestRunner(time.Minute)

	plan := &Plan{
		WorkDir:     t.TempDir(),
		Invocations: []Invocation{{Label: "1080p", Stage: "Encoding 1080p", Weight: 1}},
	}

	err := runner.Run(context.Background(), plan, nil)
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("err = %v, want EncodingError", err)
	}
	if encErr.Step != "1080p" {
		t.Fatalf("step = %q, want 1080p", encErr.Step)
	}
	if !strings.Contains(encErr.Diagnostic, "Invalid data") {
		t.Fatalf("diagnostic = %q, want stderr tail", encErr.Diagnostic)
	}
}

func TestRunTimesOut(t *testing.T) {
	setEngineHelper(t, "hang")
	runner := newTestRunner(150 * time.Millisecond)

	plan := &Plan{
		WorkDir:     t.TempDir(),
		Invocations: []Invocation{{Label: "1080p", Stage: "Encoding 1080p", Weight: 1}},
	}

	err := runner.Run(context.Background(), plan, nil)
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("err = %v, want EncodingError", err)
	}
	if !strings.Contains(encErr.Err.Error(), "timed out") {
		t.Fatalf("err = %v, want timeout diagnostic", encErr.Err)
	}
}

func TestRunPropagatesCallerCancellation(t *testing.T) {
	setEngineHelper(t, "hang")
	runner := newTestRunner(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	plan := &Plan{
		WorkDir:     t.TempDir(),
		Invocations: []Invocation{{Label: "1080p", Stage: "Encoding 1080p", Weight: 1}},
	}

	err := runner.Run(ctx, plan, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context deadline", err)
	}
	var encErr *EncodingError
	if errors.As(err, &encErr) {
		t.Fatalf("caller cancellation misreported as encode failure: %v", err)
	}
}

func TestRunRejectsEmptyPlan(t *testing.T) {
	runner := newTestRunner(time.Minute)
	if err := runner.Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil plan")
	}
	if err := runner.Run(context.Background(), &Plan{}, nil); err == nil {
		t.Fatal("expected error for empty plan")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "progress":
		fmt.Println("out_time_us=30000000")
		fmt.Println("progress=continue")
		fmt.Println("out_time_us=60000000")
		fmt.Println("progress=continue")
		fmt.Println("out_time_us=120000000")
		fmt.Println("progress=end")
		os.Exit(0)
	case "regress":
		fmt.Println("out_time_us=60000000")
		fmt.Println("progress=continue")
		fmt.Println("out_time_us=30000000")
		fmt.Println("progress=continue")
		fmt.Println("out_time_us=120000000")
		fmt.Println("progress=end")
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "Error while decoding stream #0:0: Invalid data found when processing input")
		os.Exit(1)
	case "hang":
		time.Sleep(3 * time.Second)
		os.Exit(0)
	default:
		os.Exit(0)
	}
}
