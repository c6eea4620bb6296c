package media_test

import (
	"testing"

	"telecine/internal/media"
)

func TestLayoutLocations(t *testing.T) {
	layout := media.NewLayout("ingest", "publish")

	bucket, key := layout.IngestLocation(media.SourceEpisode, "ep-12", "Final Cut v2.MOV")
	if bucket != "ingest" {
		t.Fatalf("unexpected ingest bucket %q", bucket)
	}
	if key != "episodes/ep-12/source/final-cut-v2.mov" {
		t.Fatalf("unexpected ingest key %q", key)
	}

	bucket, prefix := layout.PublishLocation(media.SourceDaily, "d-7")
	if bucket != "publish" {
		t.Fatalf("unexpected publish bucket %q", bucket)
	}
	if prefix != "dailies/d-7/hls" {
		t.Fatalf("unexpected publish prefix %q", prefix)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Final Cut v2.MOV", "final-cut-v2.mov"},
		{"../../etc/passwd", "passwd"},
		{"weird###name.mp4", "weirdname.mp4"},
		{"  spaced   out .mkv", "spaced-out.mkv"},
		{"Café Réel.mov", "cafe-reel.mov"},
		{"###", ""},
		{"noext", "noext"},
	}
	for _, tc := range tests {
		if got := media.SanitizeFilename(tc.in); got != tc.want {
			t.Fatalf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestParseSourceType(t *testing.T) {
	if st, err := media.ParseSourceType(" Episode "); err != nil || st != media.SourceEpisode {
		t.Fatalf("unexpected parse result: %v %v", st, err)
	}
	if _, err := media.ParseSourceType("movie"); err == nil {
		t.Fatal("expected error for unknown source type")
	}
}

func TestSourceRefValidate(t *testing.T) {
	ref := media.SourceRef{Type: media.SourceAsset, ID: "a1", Bucket: "b", Key: "k"}
	if err := ref.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	for name, mutate := range map[string]func(*media.SourceRef){
		"missing id":     func(r *media.SourceRef) { r.ID = "" },
		"missing bucket": func(r *media.SourceRef) { r.Bucket = "" },
		"missing key":    func(r *media.SourceRef) { r.Key = "" },
		"bad type":       func(r *media.SourceRef) { r.Type = "clip" },
	} {
		bad := ref
		mutate(&bad)
		if err := bad.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
