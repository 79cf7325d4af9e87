package crawler

import (
	"fmt"
	"net"
	"net/url"
)

// AllowedSchemes lists the only URL schemes the crawler will ever fetch.
var AllowedSchemes = map[string]struct{}{"http": {}, "https": {}}

// ValidateFetchTarget rejects URLs a crawler must never follow: disallowed
// schemes, and any host that resolves to a private, loopback, or
// link-local address. This is the platform's SSRF guard and is applied to
// every seed URL, every discovered link, and every redirect target before
// a request is made.
func ValidateFetchTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("crawler: invalid URL %q: %w", raw, err)
	}
	if _, ok := AllowedSchemes[u.Scheme]; !ok {
		return nil, fmt.Errorf("crawler: disallowed scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("crawler: missing host in %q", raw)
	}

	ips, err := net.LookupIP(u.Hostname())
	if err != nil {
		return nil, fmt.Errorf("crawler: resolve host %q: %w", u.Hostname(), err)
	}
	for _, ip := range ips {
		if isBlockedIP(ip) {
			return nil, fmt.Errorf("crawler: host %q resolves to a blocked address %s", u.Hostname(), ip)
		}
	}
	return u, nil
}

func isBlockedIP(ip net.IP) bool {
	return ip.IsPrivate() ||
		ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
