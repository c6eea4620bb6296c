// Package ladder builds deterministic quality ladders for adaptive streaming.
//
// The tier table is fixed: each named tier carries target dimensions and
// bitrates. Build selects the subset of requested tiers that fit the source
// resolution, ordered highest to lowest, which is also the order renditions
// appear in the master playlist.
package ladder

import (
	"fmt"
	"strings"
)

// Rendition is one rung of the bitrate ladder.
type Rendition struct {
	Label     string `json:"label"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	VideoKbps int    `json:"video_kbps"`
	AudioKbps int    `json:"audio_kbps"`
}

// Bandwidth returns the advertised playlist bandwidth in bits per second.
func (r Rendition) Bandwidth() int {
	return r.VideoKbps * 1000
}

// Resolution returns the WxH string used in playlist stream declarations.
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// tiers is ordered highest to lowest quality.
var tiers = []Rendition{
	{Label: "2160p", Width: 3840, Height: 2160, VideoKbps: 14000, AudioKbps: 192},
	{Label: "1080p", Width: 1920, Height: 1080, VideoKbps: 5000, AudioKbps: 192},
	{Label: "720p", Width: 1280, Height: 720, VideoKbps: 2800, AudioKbps: 128},
	{Label: "480p", Width: 854, Height: 480, VideoKbps: 1400, AudioKbps: 128},
	{Label: "360p", Width: 640, Height: 360, VideoKbps: 800, AudioKbps: 96},
}

// aliases maps accepted spellings onto canonical tier labels.
var aliases = map[string]string{
	"4k":    "2160p",
	"uhd":   "2160p",
	"2160p": "2160p",
	"1080p": "1080p",
	"720p":  "720p",
	"480p":  "480p",
	"360p":  "360p",
}

// Names returns every canonical tier label, highest to lowest.
func Names() []string {
	out := make([]string, len(tiers))
	for i, t := range tiers {
		out[i] = t.Label
	}
	return out
}

// DefaultQualities is the ladder used when a job requests no explicit tiers.
func DefaultQualities() []string {
	return Names()
}

// Lookup resolves a tier name (or alias) to its rendition definition.
func Lookup(name string) (Rendition, error) {
	canonical, ok := aliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Rendition{}, fmt.Errorf("unknown quality tier %q", name)
	}
	for _, t := range tiers {
		if t.Label == canonical {
			return t, nil
		}
	}
	return Rendition{}, fmt.Errorf("unknown quality tier %q", name)
}

// ValidateQualities confirms every requested tier name resolves.
func ValidateQualities(requested []string) error {
	for _, name := range requested {
		if _, err := Lookup(name); err != nil {
			return err
		}
	}
	return nil
}

// Build returns the renditions from the requested set whose target height does
// not exceed the source height, ordered highest to lowest. When every
// requested tier exceeds the source, the lowest requested tier is kept so a
// transcode always yields at least one output. An empty request uses the full
// default ladder.
func Build(sourceWidth, sourceHeight int, requested []string) ([]Rendition, error) {
	if sourceHeight <= 0 {
		return nil, fmt.Errorf("source height %d is not usable", sourceHeight)
	}
	if len(requested) == 0 {
		requested = DefaultQualities()
	}

	selected := make(map[string]bool, len(requested))
	for _, name := range requested {
		r, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		selected[r.Label] = true
	}

	ordered := make([]Rendition, 0, len(selected))
	for _, t := range tiers {
		if selected[t.Label] {
			ordered = append(ordered, t)
		}
	}

	fit := make([]Rendition, 0, len(ordered))
	for _, r := range ordered {
		if r.Height <= sourceHeight {
			fit = append(fit, r)
		}
	}
	if len(fit) == 0 {
		// Lowest requested tier guards against zero-output transcodes.
		fit = append(fit, ordered[len(ordered)-1])
	}
	return fit, nil
}

// Cap limits a built ladder to tiers at or below the given height.
func Cap(renditions []Rendition, maxHeight int) []Rendition {
	if maxHeight <= 0 {
		return renditions
	}
	out := make([]Rendition, 0, len(renditions))
	for _, r := range renditions {
		if r.Height <= maxHeight {
			out = append(out, r)
		}
	}
	if len(out) == 0 && len(renditions) > 0 {
		out = append(out, renditions[len(renditions)-1])
	}
	return out
}
