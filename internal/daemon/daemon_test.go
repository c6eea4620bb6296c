package daemon_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"telecine/internal/daemon"
	"telecine/internal/jobs"
	"telecine/internal/logging"
	"telecine/internal/media"
	"telecine/internal/testsupport"
)

type fakePool struct {
	running bool
	workers int
}

func (p *fakePool) Start(ctx context.Context) error { p.running = true; return nil }
func (p *fakePool) Stop()                           { p.running = false }
func (p *fakePool) Running() bool                   { return p.running }
func (p *fakePool) Workers() int                    { return p.workers }

type fakeURLSigner struct {
	signedResource string
	cookiePrefix   string
}

func (s *fakeURLSigner) ResourceURL(key string) string {
	return "https://play.example.net/" + strings.TrimLeft(key, "/")
}

func (s *fakeURLSigner) SignURLAt(resource string, expires time.Time, sourceIP string) (string, error) {
	s.signedResource = resource
	return resource + "?Signature=abc", nil
}

func (s *fakeURLSigner) SignCookiesAt(sourcePrefix string, expires time.Time, sourceIP string) ([]*http.Cookie, error) {
	s.cookiePrefix = sourcePrefix
	return []*http.Cookie{
		{Name: "CloudFront-Policy", Value: "p", Domain: "play.example.net", Expires: expires},
		{Name: "CloudFront-Signature", Value: "s", Domain: "play.example.net", Expires: expires},
	}, nil
}

type fakePresigner struct {
	bucket string
	key    string
	err    error
}

func (p *fakePresigner) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	p.bucket, p.key = bucket, key
	if p.err != nil {
		return "", p.err
	}
	return "https://s3.example.net/" + bucket + "/" + key + "?X-Amz-Signature=xyz", nil
}

func newDaemon(t *testing.T, comps func(*daemon.Components)) (*daemon.Daemon, *jobs.Store, *jobs.Orchestrator) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	orch := jobs.NewOrchestrator(cfg, store, logging.NewNop())

	c := daemon.Components{
		Store:        store,
		Orchestrator: orch,
		Pool:         &fakePool{workers: 2},
	}
	if comps != nil {
		comps(&c)
	}
	d, err := daemon.New(cfg, logging.NewNop(), "/tmp/telecined.log", c)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store, orch
}

func TestDaemonStartStop(t *testing.T) {
	d, _, _ := newDaemon(t, nil)

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	status := d.Status(context.Background())
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", status.Workers)
	}
	if status.PID <= 0 {
		t.Fatalf("expected valid pid, got %d", status.PID)
	}

	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail while running")
	}

	d.Stop()
	if d.Status(context.Background()).Running {
		t.Fatal("expected daemon to report stopped")
	}
}

func TestDaemonStartRejectsMissingComponents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(cfg, logging.NewNop(), "", daemon.Components{}); err == nil {
		t.Fatal("expected New to fail without required components")
	}
}

func completeJobWithOutput(t *testing.T, store *jobs.Store, orch *jobs.Orchestrator, manifestKey string) *jobs.Job {
	t.Helper()

	job := testsupport.NewQueuedJob(t, store, jobs.TypeTranscodeHLS)
	if _, err := orch.MarkProcessing(context.Background(), job.ID, "worker-1"); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	done, err := orch.CompleteJob(context.Background(), job.ID, jobs.OutputMetadata{
		ManifestBucket: "telecine-publish-test",
		ManifestKey:    manifestKey,
	})
	if err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	return done
}

func TestGrantPlaybackSignedURL(t *testing.T) {
	signer := &fakeURLSigner{}
	d, store, orch := newDaemon(t, func(c *daemon.Components) { c.Signer = signer })

	job := completeJobWithOutput(t, store, orch, "episodes/ep-9/hls/index.m3u8")

	grant, err := d.GrantPlayback(context.Background(), daemon.GrantRequest{
		SourceType: job.Source.Type,
		SourceID:   job.Source.ID,
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("GrantPlayback: %v", err)
	}
	if grant.Method != daemon.GrantSignedURL {
		t.Fatalf("expected signed-url method, got %q", grant.Method)
	}
	if signer.signedResource != "https://play.example.net/episodes/ep-9/hls/index.m3u8" {
		t.Fatalf("unexpected signed resource %q", signer.signedResource)
	}
	if !strings.Contains(grant.URL, "Signature=") {
		t.Fatalf("expected signed URL, got %q", grant.URL)
	}
	remaining := time.Until(grant.ExpiresAt)
	if remaining < 55*time.Minute || remaining > 65*time.Minute {
		t.Fatalf("expected expiry about an hour out, got %s", remaining)
	}
}

func TestGrantPlaybackCookiesSignWildcardPrefix(t *testing.T) {
	signer := &fakeURLSigner{}
	d, store, orch := newDaemon(t, func(c *daemon.Components) { c.Signer = signer })

	job := completeJobWithOutput(t, store, orch, "episodes/ep-3/hls/index.m3u8")

	grant, err := d.GrantPlayback(context.Background(), daemon.GrantRequest{
		SourceType: job.Source.Type,
		SourceID:   job.Source.ID,
		TTL:        time.Hour,
		Cookies:    true,
	})
	if err != nil {
		t.Fatalf("GrantPlayback: %v", err)
	}
	if grant.Method != daemon.GrantSignedCookies {
		t.Fatalf("expected signed-cookies method, got %q", grant.Method)
	}
	if len(grant.Cookies) == 0 {
		t.Fatal("expected cookies in grant")
	}
	if signer.cookiePrefix != "https://play.example.net/episodes/ep-3/hls/*" {
		t.Fatalf("unexpected cookie policy prefix %q", signer.cookiePrefix)
	}
	if grant.URL != "https://play.example.net/episodes/ep-3/hls/index.m3u8" {
		t.Fatalf("unexpected manifest URL %q", grant.URL)
	}
}

func TestGrantPlaybackPresignedFallback(t *testing.T) {
	presigner := &fakePresigner{}
	d, store, orch := newDaemon(t, func(c *daemon.Components) { c.Presigner = presigner })

	job := completeJobWithOutput(t, store, orch, "episodes/ep-5/hls/index.m3u8")

	grant, err := d.GrantPlayback(context.Background(), daemon.GrantRequest{
		SourceType: job.Source.Type,
		SourceID:   job.Source.ID,
		TTL:        30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("GrantPlayback: %v", err)
	}
	if grant.Method != daemon.GrantPresigned {
		t.Fatalf("expected presigned method, got %q", grant.Method)
	}
	if presigner.bucket != "telecine-publish-test" || presigner.key != "episodes/ep-5/hls/index.m3u8" {
		t.Fatalf("unexpected presign target %s/%s", presigner.bucket, presigner.key)
	}
}

func TestGrantPlaybackCookiesRequireSigner(t *testing.T) {
	d, _, _ := newDaemon(t, func(c *daemon.Components) { c.Presigner = &fakePresigner{} })

	_, err := d.GrantPlayback(context.Background(), daemon.GrantRequest{
		SourceType: media.SourceEpisode,
		SourceID:   "ep-1",
		Cookies:    true,
	})
	if !errors.Is(err, daemon.ErrPlaybackUnavailable) {
		t.Fatalf("expected ErrPlaybackUnavailable, got %v", err)
	}
}

func TestGrantPlaybackUnavailableWithoutCredentials(t *testing.T) {
	d, _, _ := newDaemon(t, nil)

	_, err := d.GrantPlayback(context.Background(), daemon.GrantRequest{
		SourceType: media.SourceEpisode,
		SourceID:   "ep-1",
	})
	if !errors.Is(err, daemon.ErrPlaybackUnavailable) {
		t.Fatalf("expected ErrPlaybackUnavailable, got %v", err)
	}
}

func TestGrantPlaybackDefaultsToLayoutManifest(t *testing.T) {
	signer := &fakeURLSigner{}
	d, _, _ := newDaemon(t, func(c *daemon.Components) { c.Signer = signer })

	grant, err := d.GrantPlayback(context.Background(), daemon.GrantRequest{
		SourceType: media.SourceShort,
		SourceID:   "sh-42",
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("GrantPlayback: %v", err)
	}
	if signer.signedResource != "https://play.example.net/shorts/sh-42/hls/index.m3u8" {
		t.Fatalf("unexpected default manifest resource %q", signer.signedResource)
	}
	if grant.Method != daemon.GrantSignedURL {
		t.Fatalf("expected signed-url method, got %q", grant.Method)
	}
}

func TestGrantPlaybackExplicitManifestKey(t *testing.T) {
	signer := &fakeURLSigner{}
	d, _, _ := newDaemon(t, func(c *daemon.Components) { c.Signer = signer })

	_, err := d.GrantPlayback(context.Background(), daemon.GrantRequest{
		SourceType:  media.SourceEpisode,
		SourceID:    "ep-1",
		ManifestKey: "episodes/ep-1/hls/variant.m3u8",
		TTL:         time.Hour,
	})
	if err != nil {
		t.Fatalf("GrantPlayback: %v", err)
	}
	if signer.signedResource != "https://play.example.net/episodes/ep-1/hls/variant.m3u8" {
		t.Fatalf("unexpected resource %q", signer.signedResource)
	}
}

func TestGrantPlaybackRejectsMissingSource(t *testing.T) {
	d, _, _ := newDaemon(t, func(c *daemon.Components) { c.Signer = &fakeURLSigner{} })

	if _, err := d.GrantPlayback(context.Background(), daemon.GrantRequest{SourceType: media.SourceEpisode}); err == nil {
		t.Fatal("expected error for empty source id")
	}
}
