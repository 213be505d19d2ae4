package middleware

import (
	"net"
	"net/http"
	"strings"
)

// RealIP rewrites r.RemoteAddr to the forwarded client address, but only when
// the connecting peer is one of the trusted proxies. Headers from any other
// peer are ignored, so a caller cannot pick its own rate-limit key.
//
// X-Forwarded-For is read from the nearest hop outwards and the first address
// that is not itself a trusted proxy wins. X-Real-IP is the fallback.
func RealIP(trusted []*net.IPNet) Stage {
	return func(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
		if len(trusted) == 0 {
			return r, nil
		}
		if ip := forwardedClient(r, trusted); ip != "" {
			r.RemoteAddr = ip
		}
		return r, nil
	}
}

func forwardedClient(r *http.Request, trusted []*net.IPNet) string {
	peer := net.ParseIP(ClientIP(r))
	if peer == nil || !containsIP(trusted, peer) {
		return ""
	}

	if values := r.Header.Values("X-Forwarded-For"); len(values) > 0 {
		hops := strings.Split(strings.Join(values, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				// Garbage in the chain; keep the proxy address
				return ""
			}
			if i == 0 || !containsIP(trusted, ip) {
				return ip.String()
			}
		}
	}

	if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return ""
}

func containsIP(nets []*net.IPNet, ip net.IP) bool {
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
