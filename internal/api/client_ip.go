package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver picks the address used to key per-client rate limits.
// X-Forwarded-For and X-Real-IP are read only when the TCP peer is one of
// the configured proxies.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

// NewClientIPResolver accepts bare addresses and CIDR ranges.
func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	r := &ClientIPResolver{}
	for _, raw := range trustedProxies {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if addr, err := netip.ParseAddr(value); err == nil {
			addr = addr.Unmap()
			r.trusted = append(r.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		r.trusted = append(r.trusted, prefix.Masked())
	}
	return r, nil
}

// Resolve returns the client address for req, or "unknown" when the peer
// address cannot be parsed.
func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer, ok := addrFromRemote(req.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !r.trustedPeer(peer) {
		return peer.String()
	}

	// Walk right to left: the first hop we do not control is the client.
	if hops := req.Header.Values("X-Forwarded-For"); len(hops) > 0 {
		list := strings.Split(strings.Join(hops, ","), ",")
		for i := len(list) - 1; i >= 0; i-- {
			hop, ok := parseAddr(list[i])
			if !ok {
				continue
			}
			if !r.trustedPeer(hop) {
				return hop.String()
			}
		}
	}
	if xri, ok := parseAddr(req.Header.Get("X-Real-IP")); ok {
		return xri.String()
	}
	return peer.String()
}

// Key adapts Resolve to an httprate key function.
func (r *ClientIPResolver) Key(req *http.Request) (string, error) {
	return r.Resolve(req), nil
}

func (r *ClientIPResolver) trustedPeer(addr netip.Addr) bool {
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func addrFromRemote(remoteAddr string) (netip.Addr, bool) {
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	return parseAddr(remoteAddr)
}

func parseAddr(value string) (netip.Addr, bool) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return netip.Addr{}, false
	}
	if host, _, err := net.SplitHostPort(value); err == nil {
		value = host
	}
	addr, err := netip.ParseAddr(strings.Trim(value, "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
