package source

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"slices"
	"strings"
	"syscall"
	"time"
)

// ErrForbidden is returned for references the fetcher is not allowed to reach.
var ErrForbidden = errors.New("document location not allowed")

// carrier-grade NAT and benchmarking ranges that netip does not classify
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
}

func publicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() || ip.IsUnspecified() || ip.IsLoopback() || ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

// refusePrivate runs on every dial, after name resolution, so a public name
// that resolves to an internal address is refused as well.
func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%s: %w", address, ErrForbidden)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !publicAddr(ip) {
		return fmt.Errorf("%s: %w", host, ErrForbidden)
	}
	return nil
}

// hostAllowed matches u against allowed. Entries are exact host names or,
// with a leading dot, a domain and its subdomains. An empty list allows any
// host.
func hostAllowed(u *url.URL, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	host := strings.ToLower(u.Hostname())
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if strings.HasPrefix(a, ".") {
			if host == a[1:] || strings.HasSuffix(host, a) {
				return true
			}
			continue
		}
		if host == a {
			return true
		}
	}
	return false
}

func newHTTPClient(opts Options) *http.Client {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if !opts.AllowPrivate {
		dialer.Control = refusePrivate
		// a proxy would be the only address dialled
		tr.Proxy = nil
	}
	tr.DialContext = dialer.DialContext
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: tr,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New("stopped after 10 redirects")
			}
			if !hostAllowed(req.URL, opts.AllowedHosts) {
				return fmt.Errorf("redirect to %s: %w", req.URL.Host, ErrForbidden)
			}
			return nil
		},
	}
}

// allowed checks r against the host and bucket allowlists.
func (f *Fetcher) allowed(r Ref) error {
	switch r.Kind {
	case KindHTTP:
		u, err := url.Parse(r.URL)
		if err != nil || u.Hostname() == "" {
			return fmt.Errorf("invalid url %s", r.URL)
		}
		if !hostAllowed(u, f.opts.AllowedHosts) {
			return fmt.Errorf("host %s: %w", u.Hostname(), ErrForbidden)
		}
	case KindS3:
		if !slices.Contains(f.opts.Buckets, r.Bucket) {
			return fmt.Errorf("bucket %s: %w", r.Bucket, ErrForbidden)
		}
	}
	return nil
}
