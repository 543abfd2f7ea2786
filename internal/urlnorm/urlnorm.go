// Package urlnorm canonicalizes article URLs so equality means "same page".
package urlnorm

import (
	"net/url"
	"sort"
	"strings"
)

// DedupScope selects the equality granularity used for report dedup keys.
type DedupScope string

// Supported dedup scopes.
const (
	ScopeURL  DedupScope = "url"
	ScopeHost DedupScope = "host"
)

// Valid reports whether s is a known scope.
func (s DedupScope) Valid() bool {
	return s == ScopeURL || s == ScopeHost
}

// redirectParams are query keys that redirector services use to carry the
// true destination.
var redirectParams = []string{"url", "u", "q", "target", "dest", "redirect", "to", "link"}

// trackingParams are stripped during normalization. Keys beginning with
// "utm_" are stripped as a class.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"dclid":   {},
	"msclkid": {},
	"yclid":   {},
	"igshid":  {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"source":  {},
}

// Unwrap strips one layer of redirector wrapping. If rawURL carries an
// absolute http(s) destination in a known query parameter the decoded
// destination is returned, otherwise rawURL comes back unchanged. Never fails.
func Unwrap(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for _, key := range redirectParams {
		candidate := q.Get(key)
		if candidate == "" {
			continue
		}
		if dest, err := url.Parse(candidate); err == nil && isAbsoluteHTTP(dest) {
			return candidate
		}
	}
	return rawURL
}

// Normalize canonicalizes a URL for equality: tracking parameters and the
// fragment are dropped, trailing slashes are removed from the path, the
// remaining query keys are serialized in sorted order, and the result is
// lowercased. Idempotent. Malformed input yields the lowercased original.
func Normalize(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" || u.Scheme == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	u.Fragment = ""
	u.RawQuery = cleanQuery(u.Query())
	u.Path = strings.TrimRight(u.Path, "/")
	return strings.ToLower(u.String())
}

// DedupKey derives the report-ledger key for a normalized URL under the
// configured scope. Host scope collapses every path on a site to one key.
func DedupKey(normalizedURL string, scope DedupScope) string {
	if scope != ScopeHost {
		return normalizedURL
	}
	u, err := url.Parse(normalizedURL)
	if err != nil || u.Host == "" {
		return normalizedURL
	}
	return strings.ToLower(u.Host)
}

func cleanQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for key := range q {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			continue
		}
		if _, tracked := trackingParams[lower]; tracked {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		for _, value := range q[key] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(value))
		}
	}
	return b.String()
}

func isAbsoluteHTTP(u *url.URL) bool {
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
