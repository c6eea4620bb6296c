package transcode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"telecine/internal/config"
	"telecine/internal/jobs"
	"telecine/internal/ladder"
)

const (
	shortMaxHeight      = 720
	shortSegmentSeconds = 2

	defaultProxyHeight    = 480
	defaultThumbnailWidth = 1280
	defaultWaveformWidth  = 1000
	defaultWaveformHeight = 200
)

// Source describes a probed local input file.
type Source struct {
	Path            string
	Width           int
	Height          int
	DurationSeconds float64
}

// Request carries everything the planner needs for one job.
type Request struct {
	Job     *jobs.Job
	Source  Source
	WorkDir string

	// ConcatSources are additional local inputs for concat jobs, in stitch
	// order after the primary source.
	ConcatSources []Source
}

// Invocation is a single engine run within a plan.
type Invocation struct {
	Label string
	Stage string
	Args  []string

	// Weight is this invocation's share of overall plan progress. Weights
	// across a plan sum to 1.
	Weight float64

	// DurationSeconds is the media duration the run processes, used as the
	// progress denominator. Zero disables fractional progress for the run.
	DurationSeconds float64
}

// Plan is the ordered set of engine runs for one job.
type Plan struct {
	WorkDir     string
	Invocations []Invocation

	// Renditions is non-empty for ladder jobs; the runner writes the master
	// playlist from it after the final rendition encodes.
	Renditions []ladder.Rendition

	// Artifact is the plan's principal output, relative to WorkDir.
	Artifact string
}

// Planner builds engine invocations from job parameters.
type Planner struct {
	preset         string
	segmentSeconds int
}

// NewPlanner constructs a Planner using the configured encoder defaults.
func NewPlanner(cfg *config.Config) *Planner {
	preset := strings.TrimSpace(cfg.Transcode.Preset)
	if preset == "" {
		preset = "medium"
	}
	segment := cfg.Transcode.SegmentSeconds
	if segment <= 0 {
		segment = 6
	}
	return &Planner{preset: preset, segmentSeconds: segment}
}

// Build produces the plan for a job against its downloaded source. It
// creates the output directory tree the invocations will write into.
func (p *Planner) Build(req Request) (*Plan, error) {
	if req.Job == nil {
		return nil, errors.New("job is required")
	}
	if strings.TrimSpace(req.Source.Path) == "" {
		return nil, errors.New("source path is required")
	}
	if strings.TrimSpace(req.WorkDir) == "" {
		return nil, errors.New("work directory is required")
	}
	if err := os.MkdirAll(req.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	decoded, err := jobs.DecodeConfig(req.Job.Type, req.Job.ConfigJSON)
	if err != nil {
		return nil, err
	}

	switch cfg := decoded.(type) {
	case jobs.TranscodeConfig:
		return p.ladderPlan(req, cfg)
	case jobs.ProxyConfig:
		return p.proxyPlan(req, cfg)
	case jobs.ThumbnailConfig:
		return p.thumbnailPlan(req, cfg)
	case jobs.WaveformConfig:
		return p.waveformPlan(req, cfg)
	case jobs.AudioExtractConfig:
		return p.audioPlan(req, cfg)
	case jobs.ConcatConfig:
		return p.concatPlan(req)
	default:
		return nil, fmt.Errorf("no plan for job type %s", req.Job.Type)
	}
}

func (p *Planner) ladderPlan(req Request, cfg jobs.TranscodeConfig) (*Plan, error) {
	renditions, err := ladder.Build(req.Source.Width, req.Source.Height, cfg.Qualities)
	if err != nil {
		return nil, err
	}
	segment := cfg.SegmentSeconds
	if req.Job.Type == jobs.TypeTranscodeShort {
		renditions = ladder.Cap(renditions, shortMaxHeight)
		if segment <= 0 {
			segment = shortSegmentSeconds
		}
	} else if segment <= 0 {
		segment = p.segmentSeconds
	}

	totalKbps := 0
	for _, r := range renditions {
		totalKbps += r.VideoKbps
	}

	invocations := make([]Invocation, 0, len(renditions))
	for _, r := range renditions {
		dir := filepath.Join(req.WorkDir, r.Label)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create rendition directory: %w", err)
		}
		args := []string{
			"-i", req.Source.Path,
			"-vf", fmt.Sprintf("scale=w=%d:h=%d:force_original_aspect_ratio=decrease:force_divisible_by=2", r.Width, r.Height),
			"-c:v", "libx264",
			"-preset", p.preset,
			"-b:v", kbps(r.VideoKbps),
			"-maxrate", kbps(r.VideoKbps),
			"-bufsize", kbps(2 * r.VideoKbps),
			"-g", "48",
			"-sc_threshold", "0",
			"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", segment),
			"-c:a", "aac",
			"-b:a", kbps(r.AudioKbps),
			"-ac", "2",
			"-f", "hls",
			"-hls_time", strconv.Itoa(segment),
			"-hls_playlist_type", "vod",
			"-hls_list_size", "0",
			"-hls_segment_filename", filepath.Join(dir, "segment_%05d.ts"),
			filepath.Join(dir, "index.m3u8"),
		}
		invocations = append(invocations, Invocation{
			Label:           r.Label,
			Stage:           "Encoding " + r.Label,
			Args:            args,
			Weight:          float64(r.VideoKbps) / float64(totalKbps),
			DurationSeconds: req.Source.DurationSeconds,
		})
	}

	return &Plan{
		WorkDir:     req.WorkDir,
		Invocations: invocations,
		Renditions:  renditions,
		Artifact:    "index.m3u8",
	}, nil
}

func (p *Planner) proxyPlan(req Request, cfg jobs.ProxyConfig) (*Plan, error) {
	height := cfg.Height
	if height <= 0 {
		height = defaultProxyHeight
	}
	args := []string{
		"-i", req.Source.Path,
		"-vf", fmt.Sprintf("scale=w=-2:h=%d", height),
		"-c:v", "libx264",
		"-preset", p.preset,
	}
	if cfg.VideoKbps > 0 {
		args = append(args, "-b:v", kbps(cfg.VideoKbps), "-maxrate", kbps(cfg.VideoKbps), "-bufsize", kbps(2*cfg.VideoKbps))
	} else {
		args = append(args, "-crf", "23")
	}
	args = append(args,
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		filepath.Join(req.WorkDir, "proxy.mp4"),
	)
	return singleInvocationPlan(req.WorkDir, Invocation{
		Label:           "proxy",
		Stage:           "Building proxy",
		Args:            args,
		Weight:          1,
		DurationSeconds: req.Source.DurationSeconds,
	}, "proxy.mp4"), nil
}

func (p *Planner) thumbnailPlan(req Request, cfg jobs.ThumbnailConfig) (*Plan, error) {
	width := cfg.Width
	if width <= 0 {
		width = defaultThumbnailWidth
	}
	args := []string{
		"-ss", strconv.FormatFloat(cfg.TimestampSeconds, 'f', 3, 64),
		"-i", req.Source.Path,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=w=%d:h=-2", width),
		"-q:v", "2",
		filepath.Join(req.WorkDir, "thumbnail.jpg"),
	}
	return singleInvocationPlan(req.WorkDir, Invocation{
		Label:  "thumbnail",
		Stage:  "Extracting thumbnail",
		Args:   args,
		Weight: 1,
	}, "thumbnail.jpg"), nil
}

func (p *Planner) waveformPlan(req Request, cfg jobs.WaveformConfig) (*Plan, error) {
	width := cfg.Width
	if width <= 0 {
		width = defaultWaveformWidth
	}
	height := cfg.Height
	if height <= 0 {
		height = defaultWaveformHeight
	}
	args := []string{
		"-i", req.Source.Path,
		"-filter_complex", fmt.Sprintf("showwavespic=s=%dx%d", width, height),
		"-frames:v", "1",
		filepath.Join(req.WorkDir, "waveform.png"),
	}
	return singleInvocationPlan(req.WorkDir, Invocation{
		Label:  "waveform",
		Stage:  "Rendering waveform",
		Args:   args,
		Weight: 1,
	}, "waveform.png"), nil
}

func (p *Planner) audioPlan(req Request, cfg jobs.AudioExtractConfig) (*Plan, error) {
	args := []string{
		"-i", req.Source.Path,
		"-vn",
	}
	artifact := "audio.m4a"
	switch cfg.Format {
	case "", "m4a":
		args = append(args, "-c:a", "aac", "-b:a", "192k")
	case "wav":
		artifact = "audio.wav"
		args = append(args, "-c:a", "pcm_s16le")
	}
	args = append(args, filepath.Join(req.WorkDir, artifact))
	return singleInvocationPlan(req.WorkDir, Invocation{
		Label:           "audio",
		Stage:           "Extracting audio",
		Args:            args,
		Weight:          1,
		DurationSeconds: req.Source.DurationSeconds,
	}, artifact), nil
}

func (p *Planner) concatPlan(req Request) (*Plan, error) {
	if len(req.ConcatSources) == 0 {
		return nil, errors.New("concat requires additional local sources")
	}

	var list strings.Builder
	duration := req.Source.DurationSeconds
	writeConcatEntry(&list, req.Source.Path)
	for _, extra := range req.ConcatSources {
		if strings.TrimSpace(extra.Path) == "" {
			return nil, errors.New("concat source has empty path")
		}
		writeConcatEntry(&list, extra.Path)
		duration += extra.DurationSeconds
	}
	// Dotfile so publication skips it along with other hidden files.
	listPath := filepath.Join(req.WorkDir, ".concat.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return nil, fmt.Errorf("write concat list: %w", err)
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:v", "libx264",
		"-preset", p.preset,
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		filepath.Join(req.WorkDir, "combined.mp4"),
	}
	return singleInvocationPlan(req.WorkDir, Invocation{
		Label:           "concat",
		Stage:           "Concatenating sources",
		Args:            args,
		Weight:          1,
		DurationSeconds: duration,
	}, "combined.mp4"), nil
}

func singleInvocationPlan(workDir string, inv Invocation, artifact string) *Plan {
	return &Plan{
		WorkDir:     workDir,
		Invocations: []Invocation{inv},
		Artifact:    artifact,
	}
}

// writeConcatEntry emits one concat demuxer list line. Single quotes in the
// path use the demuxer's quote-escape form.
func writeConcatEntry(b *strings.Builder, path string) {
	escaped := strings.ReplaceAll(path, "'", `'\''`)
	fmt.Fprintf(b, "file '%s'\n", escaped)
}

func kbps(value int) string {
	return strconv.Itoa(value) + "k"
}
