package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"regexp"
)

var (
	idPattern      = regexp.MustCompile(`^[0-9a-f]{40}$`)
	encodedPattern = regexp.MustCompile(`^https?%3A%2F%2F`)
)

// Hash returns the identity of a canonical URI: the hex SHA-1 of its bytes.
func Hash(uri string) string {
	sum := sha1.Sum([]byte(uri))
	return hex.EncodeToString(sum[:])
}

// IsID reports whether s has the shape of a Hash result.
func IsID(s string) bool {
	return idPattern.MatchString(s)
}

// ReduceURI keeps scheme, authority and path and drops query and fragment.
// Example: "http://example.com/page.html?foo=bar" -> "http://example.com/page.html"
func ReduceURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// NormalizeURI decodes a fully percent-encoded http(s) URI and, when
// reduce is set, strips it down with ReduceURI.
func NormalizeURI(raw string, reduce bool) string {
	if encodedPattern.MatchString(raw) {
		if decoded, err := url.PathUnescape(raw); err == nil {
			raw = decoded
		}
	}
	if reduce {
		raw = ReduceURI(raw)
	}
	return raw
}
