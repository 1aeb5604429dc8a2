// Package identity derives the stable product identity from a raw product
// URL. Two URLs that differ only in tracking parameters, casing, default
// ports, or a trailing slash resolve to the same canonical URL and therefore
// the same url_hash, which is the dedup key for compiled intelligence.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"prodintel/internal/types"
)

// trackingParams are dropped from the query string during canonicalization.
// Exact names only; utm_* is handled as a prefix match.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"msclkid":      true,
	"ttclid":       true,
	"twclid":       true,
	"igshid":       true,
	"mc_eid":       true,
	"ref":          true,
	"affiliate_id": true,
	"aff_id":       true,
	"aff":          true,
	"click_id":     true,
	"clickid":      true,
	"sub_id":       true,
	"subid":        true,
}

// Normalize canonicalizes a raw product URL and returns the canonical form
// together with its hex-encoded SHA-256 hash. Returns types.ErrInvalidURL
// when the input is not a well-formed absolute http(s) URL.
//
// Normalization is idempotent: Normalize of a canonical URL returns it
// unchanged.
func Normalize(rawURL string) (canonical string, urlHash string, err error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", "", fmt.Errorf("%w: empty input", types.ErrInvalidURL)
	}

	u, parseErr := url.Parse(trimmed)
	if parseErr != nil {
		return "", "", fmt.Errorf("%w: %v", types.ErrInvalidURL, parseErr)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", "", fmt.Errorf("%w: %q is not absolute", types.ErrInvalidURL, rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", fmt.Errorf("%w: unsupported scheme %q", types.ErrInvalidURL, u.Scheme)
	}
	u.Scheme = scheme
	u.Host = normalizeHost(scheme, u.Host)
	u.RawQuery = normalizeQuery(u.Query())
	u.Fragment = ""

	// Strip a single trailing slash; keep the root path bare.
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	} else if u.Path == "/" {
		u.Path = ""
	}

	canonical = u.String()
	sum := sha256.Sum256([]byte(canonical))
	return canonical, hex.EncodeToString(sum[:]), nil
}

// normalizeHost lowercases the host and strips the scheme's default port.
func normalizeHost(scheme, host string) string {
	host = strings.ToLower(host)
	switch scheme {
	case "http":
		host = strings.TrimSuffix(host, ":80")
	case "https":
		host = strings.TrimSuffix(host, ":443")
	}
	return host
}

// normalizeQuery drops tracking parameters and re-encodes the remainder in
// sorted key order so parameter ordering never affects identity.
func normalizeQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for key := range values {
		if isTrackingParam(key) {
			continue
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		vals := values[key]
		sort.Strings(vals)
		for _, val := range vals {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(url.QueryEscape(key))
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(val))
		}
	}
	return sb.String()
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "utm_") {
		return true
	}
	return trackingParams[lower]
}
