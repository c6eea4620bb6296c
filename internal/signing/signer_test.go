package signing_test

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"telecine/internal/signing"
	"telecine/internal/testsupport"
)

func writeKeyFile(t *testing.T, pkcs8 bool) (string, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var block *pem.Block
	if pkcs8 {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			t.Fatalf("marshal pkcs8: %v", err)
		}
		block = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	} else {
		block = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	}
	path := filepath.Join(t.TempDir(), "playback.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return path, key
}

func newSigner(t *testing.T) (*signing.Signer, *rsa.PrivateKey) {
	t.Helper()
	path, key := writeKeyFile(t, false)
	cfg := testsupport.NewConfig(t)
	cfg.Playback.KeyPairID = "K2JCJMDEHXQW5F"
	cfg.Playback.PrivateKeyPath = path
	cfg.Playback.BaseURL = "https://play.example.net"
	cfg.Playback.CookieDomain = ".example.net"
	signer, err := signing.NewSigner(cfg)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return signer, key
}

func decodeComponent(t *testing.T, value string) []byte {
	t.Helper()
	restored := strings.NewReplacer("-", "+", "_", "=", "~", "/").Replace(value)
	data, err := base64.StdEncoding.DecodeString(restored)
	if err != nil {
		t.Fatalf("decode credential component %q: %v", value, err)
	}
	return data
}

func verifyCredentials(t *testing.T, pub *rsa.PublicKey, policy, signature string) string {
	t.Helper()
	policyBytes := decodeComponent(t, policy)
	signatureBytes := decodeComponent(t, signature)
	digest := sha1.Sum(policyBytes)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], signatureBytes); err != nil {
		t.Fatalf("verify signature: %v", err)
	}
	return string(policyBytes)
}

func TestSignURLShapesCanonicalPolicy(t *testing.T) {
	signer, key := newSigner(t)
	resource := "https://play.example.net/episodes/ep-1/hls/index.m3u8"
	expires := time.Unix(1700000000, 0)

	signed, err := signer.SignURLAt(resource, expires, "")
	if err != nil {
		t.Fatalf("SignURLAt: %v", err)
	}
	if !strings.HasPrefix(signed, resource+"?Policy=") {
		t.Fatalf("signed url = %s", signed)
	}

	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	query := parsed.Query()
	if got := query.Get("Key-Pair-Id"); got != "K2JCJMDEHXQW5F" {
		t.Fatalf("Key-Pair-Id = %s", got)
	}

	policy := verifyCredentials(t, &key.PublicKey, query.Get("Policy"), query.Get("Signature"))
	want := `{"Statement":[{"Resource":"https://play.example.net/episodes/ep-1/hls/index.m3u8","Condition":{"DateLessThan":{"AWS:EpochTime":1700000000}}}]}`
	if policy != want {
		t.Fatalf("policy = %s\nwant    %s", policy, want)
	}
}

func TestSignURLIsDeterministic(t *testing.T) {
	signer, _ := newSigner(t)
	resource := "https://play.example.net/assets/a-1/hls/proxy.mp4"
	expires := time.Unix(1700003600, 0)

	first, err := signer.SignURLAt(resource, expires, "")
	if err != nil {
		t.Fatalf("SignURLAt: %v", err)
	}
	second, err := signer.SignURLAt(resource, expires, "")
	if err != nil {
		t.Fatalf("SignURLAt: %v", err)
	}
	if first != second {
		t.Fatalf("credentials differ for identical input:\n%s\n%s", first, second)
	}

	later, err := signer.SignURLAt(resource, expires.Add(time.Minute), "")
	if err != nil {
		t.Fatalf("SignURLAt: %v", err)
	}
	if later == first {
		t.Fatal("credentials identical across different expiries")
	}
}

func TestSignURLRestrictsClientNetwork(t *testing.T) {
	signer, key := newSigner(t)
	expires := time.Unix(1700000000, 0)

	tests := []struct {
		name     string
		sourceIP string
		want     string
	}{
		{"bare IPv4 becomes a host network", "203.0.113.7", "203.0.113.7/32"},
		{"bare IPv6 becomes a host network", "2001:db8::1", "2001:db8::1/128"},
		{"CIDR is kept", "10.0.0.0/8", "10.0.0.0/8"},
		{"unmasked CIDR is canonicalized", "10.1.2.3/8", "10.0.0.0/8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := signer.SignURLAt("https://play.example.net/x.m3u8", expires, tt.sourceIP)
			if err != nil {
				t.Fatalf("SignURLAt: %v", err)
			}
			query, err := url.Parse(signed)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			params := query.Query()
			policy := verifyCredentials(t, &key.PublicKey, params.Get("Policy"), params.Get("Signature"))
			wantCondition := fmt.Sprintf(`"DateLessThan":{"AWS:EpochTime":1700000000},"IpAddress":{"AWS:SourceIp":"%s"}`, tt.want)
			if !strings.Contains(policy, wantCondition) {
				t.Fatalf("policy = %s\nwant condition %s", policy, wantCondition)
			}
		})
	}

	if _, err := signer.SignURLAt("https://play.example.net/x.m3u8", expires, "not-an-address"); err == nil {
		t.Fatal("expected error for unparseable source address")
	}
}

func TestSignURLAppendsToExistingQuery(t *testing.T) {
	signer, _ := newSigner(t)
	signed, err := signer.SignURLAt("https://play.example.net/x.m3u8?profile=tv", time.Unix(1700000000, 0), "")
	if err != nil {
		t.Fatalf("SignURLAt: %v", err)
	}
	if !strings.Contains(signed, "?profile=tv&Policy=") {
		t.Fatalf("signed url = %s", signed)
	}
	if strings.Count(signed, "?") != 1 {
		t.Fatalf("signed url has multiple query separators: %s", signed)
	}
}

func TestSignURLComponentsStayURLSafe(t *testing.T) {
	signer, _ := newSigner(t)
	signed, err := signer.SignURLAt("https://play.example.net/x.m3u8", time.Unix(1700000000, 0), "203.0.113.7")
	if err != nil {
		t.Fatalf("SignURLAt: %v", err)
	}
	query := signed[strings.IndexByte(signed, '?')+1:]
	if strings.ContainsAny(query, "+/=") {
		t.Fatalf("credentials need URL escaping: %s", query)
	}
}

func TestSignURLUsesConfiguredDefaultTTL(t *testing.T) {
	signer, key := newSigner(t)
	before := time.Now()
	signed, err := signer.SignURL("https://play.example.net/x.m3u8", 0, "")
	if err != nil {
		t.Fatalf("SignURL: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	params := parsed.Query()
	policy := verifyCredentials(t, &key.PublicKey, params.Get("Policy"), params.Get("Signature"))

	var doc struct {
		Statement []struct {
			Condition struct {
				DateLessThan struct {
					Epoch int64 `json:"AWS:EpochTime"`
				} `json:"DateLessThan"`
			} `json:"Condition"`
		} `json:"Statement"`
	}
	if err := json.Unmarshal([]byte(policy), &doc); err != nil {
		t.Fatalf("decode policy %s: %v", policy, err)
	}
	epoch := doc.Statement[0].Condition.DateLessThan.Epoch
	want := before.Add(6 * time.Hour).Unix()
	if epoch < want-5 || epoch > want+60 {
		t.Fatalf("expiry epoch = %d, want about %d", epoch, want)
	}
}

func TestSignCookiesCarriesPlaybackDomain(t *testing.T) {
	signer, key := newSigner(t)
	prefix := "https://play.example.net/episodes/ep-1/hls/*"
	expires := time.Unix(1700000000, 0)

	cookies, err := signer.SignCookiesAt(prefix, expires, "")
	if err != nil {
		t.Fatalf("SignCookiesAt: %v", err)
	}
	if len(cookies) != 3 {
		t.Fatalf("cookie count = %d, want 3", len(cookies))
	}

	byName := make(map[string]string, len(cookies))
	for _, cookie := range cookies {
		byName[cookie.Name] = cookie.Value
		if cookie.Domain != ".example.net" {
			t.Fatalf("cookie %s domain = %s", cookie.Name, cookie.Domain)
		}
		if cookie.Path != "/" || !cookie.Secure || !cookie.HttpOnly {
			t.Fatalf("cookie %s attributes = %+v", cookie.Name, cookie)
		}
		if !cookie.Expires.Equal(expires) {
			t.Fatalf("cookie %s expires = %s", cookie.Name, cookie.Expires)
		}
	}
	if got := byName["CloudFront-Key-Pair-Id"]; got != "K2JCJMDEHXQW5F" {
		t.Fatalf("key pair cookie = %s", got)
	}

	policy := verifyCredentials(t, &key.PublicKey, byName["CloudFront-Policy"], byName["CloudFront-Signature"])
	if !strings.Contains(policy, `"Resource":"https://play.example.net/episodes/ep-1/hls/*"`) {
		t.Fatalf("policy = %s", policy)
	}
}

func TestResourceURLJoinsBaseAndKey(t *testing.T) {
	signer, _ := newSigner(t)
	tests := []struct {
		key  string
		want string
	}{
		{"episodes/ep-1/hls/index.m3u8", "https://play.example.net/episodes/ep-1/hls/index.m3u8"},
		{"/episodes/ep-1/hls/index.m3u8", "https://play.example.net/episodes/ep-1/hls/index.m3u8"},
	}
	for _, tt := range tests {
		if got := signer.ResourceURL(tt.key); got != tt.want {
			t.Fatalf("ResourceURL(%q) = %s, want %s", tt.key, got, tt.want)
		}
	}
}

func TestNewSignerLoadsBothKeyFormats(t *testing.T) {
	for _, pkcs8 := range []bool{false, true} {
		path, _ := writeKeyFile(t, pkcs8)
		cfg := testsupport.NewConfig(t)
		cfg.Playback.KeyPairID = "KTESTKEY"
		cfg.Playback.PrivateKeyPath = path
		cfg.Playback.BaseURL = "https://play.example.net"
		if _, err := signing.NewSigner(cfg); err != nil {
			t.Fatalf("NewSigner(pkcs8=%v): %v", pkcs8, err)
		}
	}
}

func TestNewSignerReportsMissingKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := signing.NewSigner(cfg); !errors.Is(err, signing.ErrKeyUnavailable) {
		t.Fatalf("unconfigured signer err = %v, want ErrKeyUnavailable", err)
	}

	cfg.Playback.KeyPairID = "KTESTKEY"
	cfg.Playback.BaseURL = "https://play.example.net"
	cfg.Playback.PrivateKeyPath = filepath.Join(t.TempDir(), "missing.pem")
	if _, err := signing.NewSigner(cfg); !errors.Is(err, signing.ErrKeyUnavailable) {
		t.Fatalf("absent key file err = %v, want ErrKeyUnavailable", err)
	}

	garbled := filepath.Join(t.TempDir(), "garbled.pem")
	if err := os.WriteFile(garbled, []byte("not a key"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg.Playback.PrivateKeyPath = garbled
	_, err := signing.NewSigner(cfg)
	if err == nil {
		t.Fatal("expected error for garbled key file")
	}
	if errors.Is(err, signing.ErrKeyUnavailable) {
		t.Fatal("garbled key should be a hard error, not a fallback")
	}
}
