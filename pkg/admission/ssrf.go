package admission

import (
	"context"
	"fmt"
	"net"
	"net/url"
)

// LookupIPFunc resolves a hostname to its addresses.
type LookupIPFunc func(ctx context.Context, host string) ([]net.IP, error)

// defaultLookupIP resolves with the system resolver.
func defaultLookupIP(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}

// checkRemoteURL validates a caller-supplied URL before any byte is fetched:
// only http(s) schemes are accepted, and the hostname must not resolve to a
// loopback, private, link-local, or unspecified address. Every resolved
// address is checked; one bad address blocks the whole fetch.
func (c *Controller) checkRemoteURL(ctx context.Context, rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	// Literal IPs skip DNS but still get the range check.
	if ip := net.ParseIP(host); ip != nil {
		if isDisallowedIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrSSRFBlocked, ip)
		}
		return parsed, nil
	}

	ips, err := c.lookupIP(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", ErrFetchFailed, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: %s has no addresses", ErrFetchFailed, host)
	}
	for _, ip := range ips {
		if isDisallowedIP(ip) {
			return nil, fmt.Errorf("%w: %s resolves to %s", ErrSSRFBlocked, host, ip)
		}
	}

	return parsed, nil
}

// isDisallowedIP reports whether fetching from ip would reach internal
// infrastructure.
func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
