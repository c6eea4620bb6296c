package probe

import (
	"math"
	"testing"
)

func TestDecodeRealPayload(t *testing.T) {
	payload := []byte(`{
		"streams": [
			{"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080},
			{"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2, "sample_rate": "48000"}
		],
		"format": {"filename": "input.mp4", "nb_streams": 2, "duration": "600.500000", "size": "104857600", "bit_rate": "1398101", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
	}`)
	result, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	width, height := result.Dimensions()
	if width != 1920 || height != 1080 {
		t.Fatalf("unexpected dimensions: %dx%d", width, height)
	}
	if result.DurationSeconds() != 600.5 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.VideoStreamCount() != 1 || result.AudioStreamCount() != 1 {
		t.Fatalf("unexpected stream counts: %d video %d audio", result.VideoStreamCount(), result.AudioStreamCount())
	}
	if result.SizeBytes() != 104857600 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestDecodeRejectsMalformedPayload(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{
		Format: Format{
			Duration: "bad",
			Size:     "-1",
		},
	}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if _, ok := result.VideoStream(); ok {
		t.Fatal("expected no video stream")
	}
}
