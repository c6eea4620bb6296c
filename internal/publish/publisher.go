package publish

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"telecine/internal/blobstore"
	"telecine/internal/logging"
)

const (
	manifestCacheControl = "public, max-age=60"
	mediaCacheControl    = "public, max-age=31536000, immutable"

	parallelUploads = 4
)

// Error reports a failed publish, naming the object that failed.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Uploader is the slice of object storage publication needs.
// *blobstore.Client satisfies it.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, opts blobstore.PutOptions) error
}

// Result summarizes a completed publish.
type Result struct {
	// PrimaryKey is the final object key of the plan's principal artifact.
	PrimaryKey string
	Files      int
	Bytes      int64

	// ComponentBytes totals uploaded bytes per top-level directory of the
	// output tree, or per file stem for artifacts at the root. Top-level
	// manifests are excluded since they describe the components.
	ComponentBytes map[string]int64
}

// Publisher uploads output trees produced by the transcode engine.
type Publisher struct {
	uploader Uploader
	logger   *slog.Logger
}

// NewPublisher wraps an uploader.
func NewPublisher(uploader Uploader, logger *slog.Logger) *Publisher {
	return &Publisher{
		uploader: uploader,
		logger:   logging.NewComponentLogger(logger, "publish"),
	}
}

type publishFile struct {
	localPath string
	rel       string
	size      int64
}

// Publish uploads every visible file under localDir to bucket/prefix.
// primary is the tree-relative path of the artifact whose published key the
// caller records; Publish fails if the tree does not contain it. Hidden
// files are scratch state and never upload.
func (p *Publisher) Publish(ctx context.Context, localDir, bucket, prefix, primary string) (*Result, error) {
	primary = path.Clean(filepath.ToSlash(primary))
	if primary == "." || primary == "" {
		return nil, &Error{Key: prefix, Err: fmt.Errorf("no primary artifact named")}
	}

	files, err := collectFiles(localDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &Error{Key: prefix, Err: fmt.Errorf("output tree %s is empty", localDir)}
	}

	var mediaFiles, subManifests, masters []publishFile
	primarySeen := false
	for _, f := range files {
		if f.rel == primary {
			primarySeen = true
		}
		switch {
		case !isManifest(f.rel):
			mediaFiles = append(mediaFiles, f)
		case strings.Contains(f.rel, "/"):
			subManifests = append(subManifests, f)
		default:
			masters = append(masters, f)
		}
	}
	if !primarySeen {
		return nil, &Error{Key: path.Join(prefix, primary), Err: fmt.Errorf("principal artifact missing from output tree")}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(parallelUploads)
	for _, f := range mediaFiles {
		f := f
		group.Go(func() error {
			return p.uploadOne(groupCtx, bucket, prefix, f)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Manifests go up only after every byte they reference is in place.
	for _, f := range subManifests {
		if err := p.uploadOne(ctx, bucket, prefix, f); err != nil {
			return nil, err
		}
	}
	for _, f := range masters {
		if err := p.uploadOne(ctx, bucket, prefix, f); err != nil {
			return nil, err
		}
	}

	result := &Result{
		PrimaryKey:     path.Join(prefix, primary),
		Files:          len(files),
		ComponentBytes: make(map[string]int64),
	}
	for _, f := range files {
		result.Bytes += f.size
		if component, ok := componentFor(f.rel); ok {
			result.ComponentBytes[component] += f.size
		}
	}

	p.logger.Info("output published",
		logging.String("bucket", bucket),
		logging.String("prefix", prefix),
		logging.Int("files", result.Files),
		logging.Int64("bytes", result.Bytes),
	)
	return result, nil
}

func (p *Publisher) uploadOne(ctx context.Context, bucket, prefix string, f publishFile) error {
	key := path.Join(prefix, f.rel)
	file, err := os.Open(f.localPath)
	if err != nil {
		return &Error{Key: key, Err: err}
	}
	defer file.Close()

	opts := blobstore.PutOptions{
		ContentType:  contentTypeFor(f.rel),
		CacheControl: mediaCacheControl,
	}
	if isManifest(f.rel) {
		opts.CacheControl = manifestCacheControl
	}
	if err := p.uploader.Upload(ctx, bucket, key, file, opts); err != nil {
		return &Error{Key: key, Err: err}
	}
	return nil
}

func collectFiles(localDir string) ([]publishFile, error) {
	var files []publishFile
	err := filepath.WalkDir(localDir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		hidden := strings.HasPrefix(entry.Name(), ".")
		if entry.IsDir() {
			if hidden && p != localDir {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		files = append(files, publishFile{
			localPath: p,
			rel:       filepath.ToSlash(rel),
			size:      info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk output tree: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

// componentFor buckets a file into its output component: the top-level
// directory for rendition trees, the file stem for root artifacts. Root
// manifests describe components rather than belong to one.
func componentFor(rel string) (string, bool) {
	if dir, _, ok := strings.Cut(rel, "/"); ok {
		return dir, true
	}
	if isManifest(rel) {
		return "", false
	}
	return strings.TrimSuffix(rel, path.Ext(rel)), true
}

func isManifest(rel string) bool {
	return strings.EqualFold(path.Ext(rel), ".m3u8")
}

func contentTypeFor(rel string) string {
	switch strings.ToLower(path.Ext(rel)) {
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".ts":
		return "video/mp2t"
	case ".mp4":
		return "video/mp4"
	case ".m4s":
		return "video/iso.segment"
	case ".m4a":
		return "audio/mp4"
	case ".wav":
		return "audio/wav"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
