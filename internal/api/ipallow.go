package api

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"
)

// IPAllowlist gates notification creation by client network. An empty
// allowlist admits everyone.
type IPAllowlist struct {
	networks []netip.Prefix
}

// NewIPAllowlist parses CIDR entries such as "10.0.0.0/8" or "127.0.0.1/32".
func NewIPAllowlist(cidrs []string) (*IPAllowlist, error) {
	networks := make([]netip.Prefix, 0, len(cidrs))
	for _, cidr := range cidrs {
		prefix, err := netip.ParsePrefix(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid allowed network %q: %w", cidr, err)
		}
		networks = append(networks, prefix)
	}
	return &IPAllowlist{networks: networks}, nil
}

// Allows reports whether the request's whole forwarded chain lies inside the
// allowed networks. Every X-Forwarded-For entry must match, a single hop
// outside the allowlist rejects the request even if a proxy in between is
// trusted. With a non-empty allowlist, a request with no resolvable address
// is denied.
func (a *IPAllowlist) Allows(r *http.Request) bool {
	if len(a.networks) == 0 {
		return true
	}

	addrs, ok := clientChain(r)
	if !ok {
		return false
	}
	for _, addr := range addrs {
		if !a.contains(addr) {
			return false
		}
	}
	return true
}

func (a *IPAllowlist) contains(addr netip.Addr) bool {
	for _, prefix := range a.networks {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func clientChain(r *http.Request) ([]netip.Addr, bool) {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		addrs := make([]netip.Addr, 0, len(parts))
		for _, part := range parts {
			addr, err := netip.ParseAddr(strings.TrimSpace(part))
			if err != nil {
				return nil, false
			}
			addrs = append(addrs, addr)
		}
		return addrs, true
	}

	addrPort, err := netip.ParseAddrPort(r.RemoteAddr)
	if err != nil {
		return nil, false
	}
	return []netip.Addr{addrPort.Addr()}, true
}
