package testsupport

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

// patternReader yields an endless stream of one repeated byte.
type patternReader struct {
	b byte
}

func (r patternReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	return len(p), nil
}

// WriteSizedFile creates path holding exactly size bytes of repeating
// content, creating parent directories as needed. Sizes below one byte are
// bumped to one so the file always exists with content.
func WriteSizedFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size < 1 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if _, err := io.CopyN(f, patternReader{b: 'T'}, size); err != nil {
		t.Fatalf("fill %s: %v", path, err)
	}
}
