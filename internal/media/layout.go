package media

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldMarks decomposes accented characters and strips the combining marks so
// they sanitize to their base letters instead of vanishing.
var foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Layout derives canonical object storage locations from content identity.
// Ingest keys place uploaded masters under a per-source prefix in the ingest
// bucket; publish prefixes place HLS output and derived artifacts under a
// matching prefix in the publish bucket.
type Layout struct {
	ingestBucket  string
	publishBucket string
}

// NewLayout constructs a Layout over the configured buckets.
func NewLayout(ingestBucket, publishBucket string) *Layout {
	return &Layout{
		ingestBucket:  strings.TrimSpace(ingestBucket),
		publishBucket: strings.TrimSpace(publishBucket),
	}
}

// IngestLocation returns the bucket and key where a new upload for the given
// content should land.
func (l *Layout) IngestLocation(st SourceType, id, filename string) (string, string) {
	name := SanitizeFilename(filename)
	if name == "" {
		name = "source"
	}
	return l.ingestBucket, path.Join(collectionPrefix(st), id, "source", name)
}

// PublishLocation returns the bucket and key prefix where job output for the
// given content is published.
func (l *Layout) PublishLocation(st SourceType, id string) (string, string) {
	return l.publishBucket, path.Join(collectionPrefix(st), id, "hls")
}

func collectionPrefix(st SourceType) string {
	switch st {
	case SourceEpisode:
		return "episodes"
	case SourceShort:
		return "shorts"
	case SourceDaily:
		return "dailies"
	default:
		return "assets"
	}
}

// SanitizeFilename converts an arbitrary upload filename into a safe object
// key component. Path separators and control characters are dropped, accents
// fold to their base letters, spaces collapse to hyphens, and the extension
// is preserved in lowercase.
func SanitizeFilename(input string) string {
	input = strings.TrimSpace(input)
	if idx := strings.LastIndexAny(input, "/\\"); idx >= 0 {
		input = input[idx+1:]
	}
	if folded, _, err := transform.String(foldMarks, input); err == nil {
		input = folded
	}
	ext := ""
	if idx := strings.LastIndex(input, "."); idx > 0 {
		ext = strings.ToLower(input[idx:])
		input = input[:idx]
	}
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(input) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if !lastHyphen && b.Len() > 0 {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		return ""
	}
	return name + ext
}
