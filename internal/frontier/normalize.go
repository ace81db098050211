// Package frontier implements the priority-queue coordination component
// (C3): URL admission, per-worker claiming with lease recovery, and the
// canonicalization rules in this file that let two differently-written
// URLs for the same resource collapse to one frontier entry.
package frontier

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// blockedQueryParams holds the advertising/analytics query keys stripped
// during canonicalization; none of them affect what a page actually
// renders, so keeping them around would fragment the frontier with
// duplicate entries for the same content.
var blockedQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"gclsrc":       {},
	"dclid":        {},
	"msclkid":      {},
}

// schemeDefaultPort maps a scheme to the port implied by omitting one.
var schemeDefaultPort = map[string]string{
	"http":  "80",
	"https": "443",
}

var (
	errEmptyInput          = errors.New("normalize url: empty input")
	errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")
	errEmptyHostInput      = errors.New("extract host: empty input")
)

// NormalizeURL canonicalizes rawURL so that equivalent URLs produce
// identical strings: scheme and host are lowercased, a port matching the
// scheme's default is dropped, the fragment is discarded, dot-segments and
// trailing slashes are resolved out of the path, and the query string is
// re-encoded with blockedQueryParams removed and remaining keys sorted.
// Unlike a same-site scheme upgrade, the scheme itself is only lowercased,
// never rewritten to https — a page served over both http and https is not
// assumed to be the same resource for dedup purposes.
func NormalizeURL(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errEmptyInput
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if err := requireSchemeAndHost(u); err != nil {
		return "", err
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = canonicalHost(u)
	u.Fragment = ""
	u.RawQuery = canonicalQuery(u.Query())
	u.Path = canonicalPath(u.Path)

	return u.String(), nil
}

// URLHash returns the SHA-256 hex digest (64 hex characters) of rawURL's
// canonical form, used as the frontier's stable dedup key.
func URLHash(rawURL string) (string, error) {
	canonical, err := NormalizeURL(rawURL)
	if err != nil {
		return "", fmt.Errorf("url hash: %w", err)
	}
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}

// ExtractHost returns rawURL's lowercased hostname, without port.
func ExtractHost(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errEmptyHostInput
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("extract host: %w", err)
	}
	if err := requireSchemeAndHost(u); err != nil {
		return "", err
	}

	return strings.ToLower(u.Hostname()), nil
}

func requireSchemeAndHost(u *url.URL) error {
	if u.Scheme == "" || u.Host == "" {
		return errMissingSchemeOrHost
	}
	return nil
}

// canonicalHost lowercases the hostname and drops the port when it's the
// scheme's implicit default, so ":443" on an https URL disappears but a
// non-standard port is preserved.
func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		return host
	}
	if schemeDefaultPort[u.Scheme] == port {
		return host
	}
	return host + ":" + port
}

// canonicalQuery removes blockedQueryParams from values and re-encodes what
// remains. url.Values.Encode already sorts keys and escapes both keys and
// values, giving deterministic output for parameter order without any
// hand-rolled string building here.
func canonicalQuery(values url.Values) string {
	kept := make(url.Values, len(values))
	for key, vals := range values {
		if _, blocked := blockedQueryParams[key]; blocked {
			continue
		}
		kept[key] = vals
	}
	return kept.Encode()
}

// canonicalPath resolves "." and ".." segments and drops a trailing slash,
// except for the bare root path.
func canonicalPath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	return strings.TrimRight(path.Clean(p), "/")
}
