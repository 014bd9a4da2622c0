// Package netguard checks outbound URLs before the daemon dials them and
// bounds how much of a response it reads.
package netguard

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// MaxBody is the default cap for response reads (1 MiB).
const MaxBody int64 = 1 << 20

var (
	// ErrPrivateAddress is returned for URLs resolving to loopback, link-local
	// or private ranges.
	ErrPrivateAddress = errors.New("netguard: URL targets a private or loopback address")
	// ErrScheme is returned for anything but http and https.
	ErrScheme = errors.New("netguard: only http and https are allowed")
	// ErrTooLarge is returned by ReadLimited when the body exceeds the cap.
	ErrTooLarge = errors.New("netguard: response too large")
)

// Resolver looks up host addresses. net.DefaultResolver.LookupHost fits.
type Resolver func(host string) ([]string, error)

// Policy validates outbound URLs.
type Policy struct {
	// AllowPrivate accepts loopback and private targets (local bus routes, tests).
	AllowPrivate bool
	// Resolve defaults to net.LookupHost. Lookup failures are let through;
	// the dial fails later anyway.
	Resolve Resolver
}

// Check validates rawURL against the policy.
func (p Policy) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("netguard: parse %q: %w", rawURL, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("netguard: %q has no host", rawURL)
	}
	if p.AllowPrivate {
		return nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if private(addr) {
			return ErrPrivateAddress
		}
		return nil
	}
	resolve := p.Resolve
	if resolve == nil {
		resolve = net.LookupHost
	}
	addrs, err := resolve(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if addr, err := netip.ParseAddr(a); err == nil && private(addr) {
			return ErrPrivateAddress
		}
	}
	return nil
}

// Check validates rawURL with the strict default policy.
func Check(rawURL string) error { return Policy{}.Check(rawURL) }

// ReadLimited reads at most max bytes from r.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: over %d bytes", ErrTooLarge, max)
	}
	return data, nil
}

func private(a netip.Addr) bool {
	a = a.Unmap()
	return a.IsLoopback() || a.IsPrivate() || a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() || a.IsUnspecified()
}
