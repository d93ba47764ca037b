package policy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotWebURL marks URLs outside http/https. Internal browser pages
// (about:, chrome:, file:) are never evaluated.
var ErrNotWebURL = errors.New("not a web url")

// NormalizeHost extracts the lowercase hostname from a raw URL.
// The port is dropped. Non-web schemes and empty hosts are rejected.
func NormalizeHost(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q", ErrNotWebURL, u.Scheme)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("%w: empty host", ErrNotWebURL)
	}
	return host, nil
}

// HostMatches reports whether host equals entry or sits under it as a
// subdomain. "chat.example.com" matches "example.com"; "notexample.com"
// does not. Plain substring matching is deliberately not used.
func HostMatches(host, entry string) bool {
	h := strings.TrimSuffix(strings.ToLower(host), ".")
	e := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(entry)), ".")
	if e == "" {
		return false
	}
	return h == e || strings.HasSuffix(h, "."+e)
}

// MatchAny returns the first list entry the host matches, if any.
func MatchAny(host string, entries []string) (string, bool) {
	for _, e := range entries {
		if HostMatches(host, e) {
			return e, true
		}
	}
	return "", false
}
