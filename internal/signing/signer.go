package signing

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"telecine/internal/config"
)

// ErrKeyUnavailable reports that no signing key is configured or that the
// configured key file does not exist. Callers fall back to presigned
// storage URLs in that case.
var ErrKeyUnavailable = errors.New("playback signing key unavailable")

// Cookie names the CDN recognizes.
const (
	policyCookie    = "CloudFront-Policy"
	signatureCookie = "CloudFront-Signature"
	keyPairCookie   = "CloudFront-Key-Pair-Id"
)

// Signer holds the playback key material and produces signed credentials.
// It is safe for concurrent use.
type Signer struct {
	keyPairID    string
	key          *rsa.PrivateKey
	baseURL      string
	cookieDomain string
	defaultTTL   time.Duration
	now          func() time.Time
}

// NewSigner loads the playback signing key named by the configuration.
// It returns ErrKeyUnavailable when the key pair is not configured or the
// key file is absent; a present but unparseable key is a hard error.
func NewSigner(cfg *config.Config) (*Signer, error) {
	pb := cfg.Playback
	if pb.KeyPairID == "" || pb.PrivateKeyPath == "" {
		return nil, ErrKeyUnavailable
	}
	key, err := loadPrivateKey(pb.PrivateKeyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrKeyUnavailable, pb.PrivateKeyPath)
		}
		return nil, err
	}
	ttl := time.Duration(pb.URLTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Signer{
		keyPairID:    pb.KeyPairID,
		key:          key,
		baseURL:      strings.TrimRight(pb.BaseURL, "/"),
		cookieDomain: pb.CookieDomain,
		defaultTTL:   ttl,
		now:          time.Now,
	}, nil
}

// ResourceURL joins the playback base URL with a published object key.
func (s *Signer) ResourceURL(key string) string {
	return s.baseURL + "/" + strings.TrimLeft(key, "/")
}

// SignURL returns the resource URL with Policy, Signature, and Key-Pair-Id
// query parameters appended. A non-positive ttl uses the configured default.
// When sourceIP is set, playback is restricted to that address or network.
func (s *Signer) SignURL(resource string, ttl time.Duration, sourceIP string) (string, error) {
	return s.SignURLAt(resource, s.expiry(ttl), sourceIP)
}

// SignURLAt signs a resource URL with an explicit expiry instant.
func (s *Signer) SignURLAt(resource string, expires time.Time, sourceIP string) (string, error) {
	if resource == "" {
		return "", errors.New("sign url: resource required")
	}
	doc, err := buildPolicy(resource, expires, sourceIP)
	if err != nil {
		return "", err
	}
	signature, err := s.sign(doc)
	if err != nil {
		return "", err
	}
	separator := "?"
	if strings.Contains(resource, "?") {
		separator = "&"
	}
	return resource + separator +
		"Policy=" + encodeComponent(doc) +
		"&Signature=" + signature +
		"&Key-Pair-Id=" + s.keyPairID, nil
}

// SignCookies returns the credential cookie set for every resource under
// sourcePrefix, which may end in a wildcard. Cookies carry the configured
// playback domain. A non-positive ttl uses the configured default.
func (s *Signer) SignCookies(sourcePrefix string, ttl time.Duration, sourceIP string) ([]*http.Cookie, error) {
	return s.SignCookiesAt(sourcePrefix, s.expiry(ttl), sourceIP)
}

// SignCookiesAt signs a source prefix with an explicit expiry instant.
func (s *Signer) SignCookiesAt(sourcePrefix string, expires time.Time, sourceIP string) ([]*http.Cookie, error) {
	if sourcePrefix == "" {
		return nil, errors.New("sign cookies: source prefix required")
	}
	doc, err := buildPolicy(sourcePrefix, expires, sourceIP)
	if err != nil {
		return nil, err
	}
	signature, err := s.sign(doc)
	if err != nil {
		return nil, err
	}
	cookies := []*http.Cookie{
		{Name: policyCookie, Value: encodeComponent(doc)},
		{Name: signatureCookie, Value: signature},
		{Name: keyPairCookie, Value: s.keyPairID},
	}
	for _, cookie := range cookies {
		cookie.Domain = s.cookieDomain
		cookie.Path = "/"
		cookie.Expires = expires
		cookie.Secure = true
		cookie.HttpOnly = true
	}
	return cookies, nil
}

func (s *Signer) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	return s.now().Add(ttl)
}

// The CDN verifies RSA-SHA1 signatures over the exact policy bytes.
func (s *Signer) sign(policyJSON []byte) (string, error) {
	digest := sha1.Sum(policyJSON)
	signature, err := rsa.SignPKCS1v15(nil, s.key, crypto.SHA1, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign policy: %w", err)
	}
	return encodeComponent(signature), nil
}

// Policy documents serialize with fields in this exact order and no
// whitespace so signatures stay stable across releases.
type policyDocument struct {
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Resource  string          `json:"Resource"`
	Condition policyCondition `json:"Condition"`
}

type policyCondition struct {
	DateLessThan epochTime      `json:"DateLessThan"`
	IPAddress    *sourceNetwork `json:"IpAddress,omitempty"`
}

type epochTime struct {
	Epoch int64 `json:"AWS:EpochTime"`
}

type sourceNetwork struct {
	SourceIP string `json:"AWS:SourceIp"`
}

func buildPolicy(resource string, expires time.Time, sourceIP string) ([]byte, error) {
	condition := policyCondition{DateLessThan: epochTime{Epoch: expires.Unix()}}
	if sourceIP != "" {
		network, err := canonicalNetwork(sourceIP)
		if err != nil {
			return nil, err
		}
		condition.IPAddress = &sourceNetwork{SourceIP: network}
	}
	doc := policyDocument{Statement: []policyStatement{{
		Resource:  resource,
		Condition: condition,
	}}}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode policy: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// canonicalNetwork normalizes a client restriction to CIDR form. A bare
// address becomes a single-host network.
func canonicalNetwork(sourceIP string) (string, error) {
	if strings.Contains(sourceIP, "/") {
		prefix, err := netip.ParsePrefix(sourceIP)
		if err != nil {
			return "", fmt.Errorf("parse source network %q: %w", sourceIP, err)
		}
		return prefix.Masked().String(), nil
	}
	addr, err := netip.ParseAddr(sourceIP)
	if err != nil {
		return "", fmt.Errorf("parse source address %q: %w", sourceIP, err)
	}
	return netip.PrefixFrom(addr, addr.BitLen()).String(), nil
}

// Credential components use a base64 variant whose alphabet survives URLs
// and cookie values unescaped.
var componentEscaper = strings.NewReplacer("+", "-", "=", "_", "/", "~")

func encodeComponent(data []byte) string {
	return componentEscaper.Replace(base64.StdEncoding.EncodeToString(data))
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s is %T, want RSA", path, parsed)
	}
	return key, nil
}
