package webhook

import (
	"net"
	"net/url"

	"github.com/enrichlayer/core/internal/app/apierr"
)

// resolveHost is overridable in tests to avoid real DNS lookups.
var resolveHost = net.LookupIP

// validateCallbackURL implements spec 4.5's createSubscription guard:
// rejects non-HTTPS URLs and URLs whose DNS-resolved IP falls in loopback
// (127/8), RFC1918 (10/8, 172.16/12, 192.168/16), or link-local
// (169.254/16) ranges. Every resolved address is checked, not just the
// first, so round-robin DNS can't smuggle an internal address past a
// public-looking first answer.
func validateCallbackURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return apierr.Validation("invalid callback URL: %v", err)
	}
	if u.Scheme != "https" {
		return apierr.Validation("callback URL must use https")
	}
	host := u.Hostname()
	if host == "" {
		return apierr.Validation("callback URL missing host")
	}

	ips, err := resolveHost(host)
	if err != nil {
		return apierr.Validation("could not resolve callback host: %v", err)
	}
	if len(ips) == 0 {
		return apierr.Validation("callback host resolved to no addresses")
	}
	for _, ip := range ips {
		if isDisallowedAddress(ip) {
			return apierr.Validation("callback URL resolves to a disallowed address: %s", ip)
		}
	}
	return nil
}

var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, n)
	}
	return out
}

func isDisallowedAddress(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return true
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}
