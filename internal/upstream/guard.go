package upstream

import (
	"fmt"
	"net"
	"syscall"
)

// privateRanges lists the blocks refused when BlockPrivate is set.
var privateRanges []*net.IPNet

func init() {
	cidrs := []string{
		// IPv4 RFC 1918 private ranges.
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// IPv4 loopback.
		"127.0.0.0/8",
		// IPv4 link-local, cloud metadata endpoints live here.
		"169.254.0.0/16",
		// IPv4 carrier-grade NAT.
		"100.64.0.0/10",
		// IPv6 loopback.
		"::1/128",
		// IPv6 unique local.
		"fc00::/7",
		// IPv6 link-local.
		"fe80::/10",
	}
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil {
			privateRanges = append(privateRanges, block)
		}
	}
}

// IsPrivateIP reports whether ip is loopback, unspecified, link-local or in
// one of the private ranges.
func IsPrivateIP(ip net.IP) bool {
	if ip.IsUnspecified() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, block := range privateRanges {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// refusePrivate is a net.Dialer Control hook. It sees the resolved address
// of every connection, redirects included.
func refusePrivate(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPrivateTarget, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || IsPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrPrivateTarget, host)
	}
	return nil
}
