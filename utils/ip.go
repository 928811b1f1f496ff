package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP picks the caller address: CF-Connecting-IP, then the first
// X-Forwarded-For entry, then the socket peer.
func ClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ValidIP reports whether s parses as an IPv4 or IPv6 address.
func ValidIP(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// IsPublicIP reports whether s is a valid address outside the private and reserved ranges.
func IsPublicIP(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsMulticast() || addr.IsUnspecified() || addr.IsInterfaceLocalMulticast() {
		return false
	}
	for _, p := range reservedPrefixes {
		if p.Contains(addr) {
			return false
		}
	}
	return true
}

var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("2001:db8::/32"),
}

// MaskIP hides the middle octets of an IPv4 address: 1.2.3.4 -> 1.xxx.xxx.4.
// Anything else is returned unchanged.
func MaskIP(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil || !addr.Is4() {
		return s
	}
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return s
	}
	return parts[0] + ".xxx.xxx." + parts[3]
}
