// Package security checks the provider endpoints the server is asked to call.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ProviderURLPolicy decides which base URLs a responder may be pointed at.
// The zero value accepts only https URLs on public hosts.
type ProviderURLPolicy struct {
	// AllowLocal permits plain http and loopback, private or link-local
	// targets, as used by self-hosted OpenAI-compatible servers.
	AllowLocal bool
}

// Check returns an error when rawURL is not an acceptable provider base URL.
// IP literals are checked without DNS lookups.
func (p ProviderURLPolicy) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid provider URL %q", rawURL)
	}

	if u.Scheme != "https" && !(u.Scheme == "http" && p.AllowLocal) {
		return errors.Errorf("provider URL scheme %q is not allowed", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.Errorf("provider URL %q has no host", rawURL)
	}

	if !p.AllowLocal && isLocalName(host) {
		return errors.Errorf("provider host %q is local", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return nil
	}
	if addr.Zone() != "" && !p.AllowLocal {
		return errors.Errorf("provider address %q has a zone", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Errorf("provider address %q is not routable", host)
	}
	if !p.AllowLocal && isLocalAddr(addr) {
		return errors.Errorf("provider address %q is on a local network", host)
	}
	return nil
}

func isLocalName(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
}

func isLocalAddr(addr netip.Addr) bool {
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}
