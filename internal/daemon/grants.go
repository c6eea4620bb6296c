package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"time"

	"telecine/internal/jobs"
	"telecine/internal/logging"
	"telecine/internal/media"
)

// Grant delivery methods. Signed-policy grants come from the playback
// signer; presigned grants are the storage-backend fallback used when no
// signing key is configured.
const (
	GrantSignedURL     = "signed-url"
	GrantSignedCookies = "signed-cookies"
	GrantPresigned     = "presigned"
)

// ErrPlaybackUnavailable reports that neither a signing key nor a storage
// presigner is configured, so no credentialed URL can be produced. An
// unsigned URL is never returned instead.
var ErrPlaybackUnavailable = errors.New("playback grants unavailable")

// URLSigner is the playback credential surface of the signing package.
type URLSigner interface {
	ResourceURL(key string) string
	SignURLAt(resource string, expires time.Time, sourceIP string) (string, error)
	SignCookiesAt(sourcePrefix string, expires time.Time, sourceIP string) ([]*http.Cookie, error)
}

// Presigner is the storage fallback for playback grants.
type Presigner interface {
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// GrantRequest asks for playback credentials for a published source.
type GrantRequest struct {
	SourceType media.SourceType
	SourceID   string

	// ManifestKey overrides manifest resolution when the caller already
	// knows the published key.
	ManifestKey string

	TTL      time.Duration
	SourceIP string
	Cookies  bool
}

// Grant carries issued playback credentials.
type Grant struct {
	URL          string
	Method       string
	CookieDomain string
	Cookies      []*http.Cookie
	ExpiresAt    time.Time
}

// GrantPlayback issues playback credentials for a source's published
// manifest. With a signing key configured the grant is a signed URL, or a
// signed cookie set covering every object under the source's prefix. With
// no key it falls back to a storage-presigned manifest URL.
func (d *Daemon) GrantPlayback(ctx context.Context, req GrantRequest) (*Grant, error) {
	bucket, key, err := d.resolveManifest(ctx, req)
	if err != nil {
		return nil, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Duration(d.cfg.Playback.URLTTLMinutes) * time.Minute
	}
	expires := time.Now().UTC().Add(ttl)

	if d.signer != nil {
		return d.signGrant(req, key, expires)
	}
	if d.presigner == nil {
		return nil, ErrPlaybackUnavailable
	}
	if req.Cookies {
		return nil, fmt.Errorf("%w: cookie grants require a signing key", ErrPlaybackUnavailable)
	}

	url, err := d.presigner.PresignGet(ctx, bucket, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("presign playback url: %w", err)
	}
	d.logger.Debug("playback grant issued via storage presign",
		logging.String("key", key),
	)
	return &Grant{URL: url, Method: GrantPresigned, ExpiresAt: expires}, nil
}

func (d *Daemon) signGrant(req GrantRequest, key string, expires time.Time) (*Grant, error) {
	manifestURL := d.signer.ResourceURL(key)
	if req.Cookies {
		wildcard := d.signer.ResourceURL(path.Dir(key) + "/*")
		cookies, err := d.signer.SignCookiesAt(wildcard, expires, req.SourceIP)
		if err != nil {
			return nil, err
		}
		return &Grant{
			URL:          manifestURL,
			Method:       GrantSignedCookies,
			CookieDomain: d.cfg.Playback.CookieDomain,
			Cookies:      cookies,
			ExpiresAt:    expires,
		}, nil
	}

	signed, err := d.signer.SignURLAt(manifestURL, expires, req.SourceIP)
	if err != nil {
		return nil, err
	}
	return &Grant{URL: signed, Method: GrantSignedURL, ExpiresAt: expires}, nil
}

// resolveManifest locates the published manifest for a source. An explicit
// key wins; otherwise the most recent completed job for the source decides,
// falling back to the canonical layout when no job recorded output.
func (d *Daemon) resolveManifest(ctx context.Context, req GrantRequest) (string, string, error) {
	layout := media.NewLayout(d.cfg.Storage.IngestBucket, d.cfg.Storage.PublishBucket)
	bucket, prefix := layout.PublishLocation(req.SourceType, req.SourceID)
	if req.ManifestKey != "" {
		return bucket, req.ManifestKey, nil
	}
	if _, err := media.ParseSourceType(string(req.SourceType)); err != nil {
		return "", "", err
	}
	if req.SourceID == "" {
		return "", "", errors.New("source id is required")
	}

	history, err := d.store.ListForSource(ctx, req.SourceType, req.SourceID)
	if err != nil {
		return "", "", err
	}
	for i := len(history) - 1; i >= 0; i-- {
		job := history[i]
		if job.Status != jobs.StatusCompleted || job.OutputMetadata == nil {
			continue
		}
		if job.OutputMetadata.ManifestKey == "" {
			continue
		}
		if job.OutputMetadata.ManifestBucket != "" {
			bucket = job.OutputMetadata.ManifestBucket
		}
		return bucket, job.OutputMetadata.ManifestKey, nil
	}
	return bucket, path.Join(prefix, "index.m3u8"), nil
}
