package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/mcpguard/mcp-guard/internal/domain/apperr"
)

// blockedNetworks are the CIDR ranges an upstream HTTP/SSE URL must never
// resolve into: loopback, RFC 1918 private space, link-local (which also
// covers the AWS/GCP metadata address), and their IPv6 equivalents.
var blockedNetworks []*net.IPNet

// blockedHostnames are metadata hostnames blocked by name even when they
// resolve somewhere outside blockedNetworks (e.g. an operator's split-horizon
// DNS pointing metadata.google.internal at a routable address).
var blockedHostnames = map[string]struct{}{
	"metadata.google.internal": {},
}

func init() {
	cidrs := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16", // covers the 169.254.169.254 cloud metadata address
		"0.0.0.0/8",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
		"::/128",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("transport: invalid CIDR in blockedNetworks: " + cidr)
		}
		blockedNetworks = append(blockedNetworks, network)
	}
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// ValidateUpstreamURL rejects target unless its scheme is http/https and
// it isn't a known metadata hostname. It does not resolve DNS — that
// check happens at dial time in SafeDialContext, since the two must agree
// (a config-time check alone would be vulnerable to DNS rebinding).
func ValidateUpstreamURL(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return apperr.NewTransportError(apperr.TransportSsrf, fmt.Sprintf("invalid upstream URL: %v", err))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return apperr.NewTransportError(apperr.TransportSsrf, fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	host := u.Hostname()
	if _, blocked := blockedHostnames[host]; blocked {
		return apperr.NewTransportError(apperr.TransportSsrf, fmt.Sprintf("host %q is a blocked metadata hostname", host))
	}
	if ip := net.ParseIP(host); ip != nil && isBlockedIP(ip) {
		return apperr.NewTransportError(apperr.TransportSsrf, fmt.Sprintf("host %q is a blocked address range", host))
	}
	return nil
}

// SafeDialContext returns a DialContext that re-resolves the host at
// connection time and rejects it if any resolved address falls in a
// blocked range, then pins the connection to the first safe address — so
// an attacker can't pass validation with a public IP and rebind to an
// internal one by the time the TCP connection opens.
func SafeDialContext() func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, apperr.WrapTransportError(apperr.TransportSsrf, "invalid dial address", err)
		}
		if _, blocked := blockedHostnames[host]; blocked {
			return nil, apperr.NewTransportError(apperr.TransportSsrf, fmt.Sprintf("blocked metadata hostname %q", host))
		}

		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, apperr.WrapTransportError(apperr.TransportSsrf, "dns resolution failed", err)
		}
		if len(ips) == 0 {
			return nil, apperr.NewTransportError(apperr.TransportSsrf, fmt.Sprintf("no addresses resolved for %q", host))
		}
		for _, ip := range ips {
			if isBlockedIP(ip.IP) {
				return nil, apperr.NewTransportError(apperr.TransportSsrf, fmt.Sprintf("blocked connection to %s (resolved from %s)", ip.IP, host))
			}
		}

		pinned := net.JoinHostPort(ips[0].IP.String(), port)
		return dialer.DialContext(ctx, network, pinned)
	}
}
