package transcode

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"telecine/internal/ladder"
)

// MasterPlaylistName is the top-level manifest filename within a job's
// output tree.
const MasterPlaylistName = "index.m3u8"

// RenderMasterPlaylist builds the top-level playlist referencing each
// rendition's sub-playlist. Renditions are expected highest to lowest, which
// is the order players see them in.
func RenderMasterPlaylist(renditions []ladder.Rendition) (string, error) {
	if len(renditions) == 0 {
		return "", errors.New("master playlist requires at least one rendition")
	}
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	for _, r := range renditions {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", r.Bandwidth(), r.Resolution())
		fmt.Fprintf(&b, "%s/index.m3u8\n", r.Label)
	}
	return b.String(), nil
}

// WriteMasterPlaylist renders the master playlist to path.
func WriteMasterPlaylist(path string, renditions []ladder.Rendition) error {
	content, err := RenderMasterPlaylist(renditions)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write master playlist: %w", err)
	}
	return nil
}
