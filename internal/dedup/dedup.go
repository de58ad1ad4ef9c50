// Package dedup decides whether an incoming article was already
// collected. All functions are pure: the decision depends only on the
// candidate and the caller-supplied set of existing keys, so a
// re-collection of the same feed can never insert a second row.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query parameters that vary per click but never
// identify a different article.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"igshid":       true,
	"mc_cid":       true,
	"mc_eid":       true,
	"ocid":         true,
	"cmpid":        true,
	"ref":          true,
	"ref_src":      true,
	"spm":          true,
	"share_source": true,
}

// Candidate carries the natural keys of an incoming article.
type Candidate struct {
	URL         string
	Title       string
	Description string
}

// Keys returns every key under which the candidate may already be known:
// the normalized URL, the content hash, and, only when no URL is
// available, the collapsed title. When the URL is present the title is
// deliberately not used as a key, so two different articles sharing a
// headline are not conflated.
func (c Candidate) Keys() []string {
	keys := make([]string, 0, 3)
	if u := NormalizeURL(c.URL); u != "" {
		keys = append(keys, u)
	} else if t := TitleKey(c.Title); t != "" {
		keys = append(keys, t)
	}
	if h := ContentHash(c.Title, c.Description); h != "" {
		keys = append(keys, h)
	}
	return keys
}

// IsDuplicate reports whether any of the candidate's keys is already in
// the existing set. When ambiguous the policy favors precision over
// recall: a single key match is enough to call it a duplicate.
func IsDuplicate(c Candidate, existing map[string]struct{}) bool {
	for _, k := range c.Keys() {
		if _, ok := existing[k]; ok {
			return true
		}
	}
	return false
}

// NormalizeURL canonicalizes a source URL: lowercases the host, strips
// the fragment, tracking query parameters (including any utm_* family),
// a default port, and a trailing slash. Remaining query parameters are
// sorted so equivalent URLs compare equal. Unparseable input falls back
// to the trimmed raw string.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if h, p, ok := strings.Cut(u.Host, ":"); ok {
		if (u.Scheme == "http" && p == "80") || (u.Scheme == "https" && p == "443") {
			u.Host = h
		}
	}

	q := u.Query()
	for key := range q {
		if trackingParams[strings.ToLower(key)] || strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	if len(q) == 0 {
		u.RawQuery = ""
	} else {
		keys := make([]string, 0, len(q))
		for key := range q {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var parts []string
		for _, key := range keys {
			for _, v := range q[key] {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(parts, "&")
	}

	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String()
}

// ContentHash returns the SHA-256 of the lowercased, trimmed
// title+description pair, the secondary key used when the same story is
// republished under a different URL.
func ContentHash(title, description string) string {
	text := strings.ToLower(strings.TrimSpace(title + description))
	if text == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// TitleKey collapses whitespace in a lowercased title. It is the
// fallback natural key for candidates that carry no URL.
func TitleKey(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	if len(fields) == 0 {
		return ""
	}
	return "title:" + strings.Join(fields, " ")
}
