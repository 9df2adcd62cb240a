// Package dedup canonicalizes article URLs and derives the stable hash
// used to prevent duplicate ingestion.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// trackingParams are query keys stripped during normalization. Matched
// case-insensitively.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"ref":          true,
	"source":       true,
	"mc_cid":       true,
	"mc_eid":       true,
}

// Normalize returns the canonical form of a URL: lower-cased scheme and
// host, www. prefix stripped, default ports dropped, trailing slash
// collapsed, tracking parameters removed, remaining query keys sorted,
// and any fragment discarded. Normalize is idempotent.
func Normalize(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return strings.TrimSpace(rawURL)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "" {
		scheme = "https"
	}

	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")

	port := parsed.Port()
	if port == "80" || port == "443" {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}

	path := strings.TrimRight(parsed.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}

	query := ""
	if parsed.RawQuery != "" {
		values, err := url.ParseQuery(parsed.RawQuery)
		if err == nil {
			keys := make([]string, 0, len(values))
			for key := range values {
				if trackingParams[strings.ToLower(key)] {
					continue
				}
				keys = append(keys, key)
			}
			sort.Strings(keys)

			var parts []string
			for _, key := range keys {
				for _, value := range values[key] {
					if value == "" {
						continue
					}
					parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(value))
				}
			}
			query = strings.Join(parts, "&")
		}
	}

	normalized := scheme + "://" + host + path
	if query != "" {
		normalized += "?" + query
	}
	return normalized
}

// Hash returns the hex-encoded SHA-256 of the normalized URL. Two URLs
// that normalize identically hash identically; this is the sole dedup
// key used before creating an article.
func Hash(rawURL string) string {
	sum := sha256.Sum256([]byte(Normalize(rawURL)))
	return hex.EncodeToString(sum[:])
}
