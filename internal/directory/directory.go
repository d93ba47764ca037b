// Package directory classifies hosts: known AI surfaces and
// internal-looking destinations. It holds no policy; profiles decide
// what a classification means.
package directory

import (
	"net"
	"strings"

	"github.com/tabwarden/tabwarden/internal/policy"
)

// internalSuffixes are TLDs and pseudo-TLDs that only resolve inside
// private networks.
var internalSuffixes = []string{
	".local",
	".internal",
	".intra",
	".corp",
	".lan",
	".home",
}

// Directory answers host classification questions for the engine.
// The zero value uses only the built-in AI domain list.
type Directory struct {
	custom []string
}

// New returns a directory extended with the document's custom AI
// domains.
func New(custom []string) *Directory {
	return &Directory{custom: custom}
}

// IsAIDomain reports whether host belongs to a known AI surface,
// built-in or custom.
func (d *Directory) IsAIDomain(host string) bool {
	if _, ok := policy.MatchAny(host, builtinAIDomains); ok {
		return true
	}
	if d == nil {
		return false
	}
	_, ok := policy.MatchAny(host, d.custom)
	return ok
}

// IsInternalSite reports whether host looks like a private or corporate
// destination: unqualified names, localhost, loopback or private
// addresses, and intranet suffixes. AI use on such pages scores higher
// because the surrounding content is presumed non-public.
func IsInternalSite(host string) bool {
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
	}
	if !strings.Contains(host, ".") {
		return true
	}
	for _, suffix := range internalSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}
