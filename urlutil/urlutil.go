// Package urlutil canonicalizes crawl URLs and decides same-domain membership.
package urlutil

import (
	"net/url"
	"strings"
)

// DefaultScheme is prepended to inputs that carry no http(s) scheme.
const DefaultScheme = "http"

// Normalize returns raw as an absolute URL string, prepending the default
// scheme when raw does not start with http:// or https://. It never fails and
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if hasHTTPScheme(raw) {
		return raw
	}
	return DefaultScheme + "://" + raw
}

func hasHTTPScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// CanonicalKey returns the dedup key for a URL: lower-cased scheme and host,
// no fragment, and "/" for an empty path. Unparseable input is returned
// trimmed so it still deduplicates against itself.
func CanonicalKey(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Host != "" && u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}
	return u.String()
}

// StripFragment removes the "#..." component, if any.
func StripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Matcher decides whether a URL belongs to the session's domain.
type Matcher struct {
	// Domain is the network location (host[:port]) of the base URL.
	Domain string
}

// NewMatcher builds a Matcher for the network location of baseURL.
func NewMatcher(baseURL string) Matcher {
	u, err := url.Parse(baseURL)
	if err != nil {
		return Matcher{}
	}
	return Matcher{Domain: u.Host}
}

// IsSameDomain reports whether raw shares the session domain. References
// without a network location count as same-domain; malformed input does not.
func (m Matcher) IsSameDomain(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Host == "" {
		return true
	}
	return strings.EqualFold(u.Host, m.Domain)
}
