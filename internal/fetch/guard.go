package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// ErrBlockedAddress is returned for URLs that resolve to loopback, private,
// link-local or otherwise non-public addresses.
var ErrBlockedAddress = errors.New("destination address is not allowed")

var sharedAddressSpace = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

// blockedIP reports whether ip must not be dialed on behalf of a caller.
func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() ||
		ip.IsMulticast() ||
		sharedAddressSpace.Contains(ip)
}

// dialControl runs after DNS resolution, so a host that re-resolves to a blocked
// address between checks is still refused.
func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, address)
	}
	ip := net.ParseIP(host)
	if ip == nil || blockedIP(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

// guardedClient is an HTTP client whose every connection, redirects included,
// passes dialControl. Proxies are disabled since they would dial on our behalf.
func guardedClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = (&net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   dialControl,
	}).DialContext
	return &http.Client{Timeout: timeout, Transport: transport}
}

// checkHost resolves host and fails when any of its addresses is blocked.
func checkHost(ctx context.Context, host string) error {
	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
		}
		return nil
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, addr := range addrs {
		if blockedIP(addr.IP) {
			return fmt.Errorf("%w: %s resolves to %s", ErrBlockedAddress, host, addr.IP)
		}
	}
	return nil
}
