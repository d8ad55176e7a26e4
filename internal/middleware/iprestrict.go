package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/miroslavpejic85/mirotalk-admin/internal/logging"
	"github.com/miroslavpejic85/mirotalk-admin/internal/logutil"
)

// AllowList is a parsed ADMIN_ALLOWED_IPS value. A nil AllowList allows
// every address.
type AllowList []*net.IPNet

// ParseAllowedIPs parses a comma-separated list of IPs and CIDR ranges.
// Single IPs become /32 (IPv4) or /128 (IPv6) networks. An empty list or a
// "*" entry returns nil (allow all).
func ParseAllowedIPs(allowList string) (AllowList, error) {
	allowList = strings.TrimSpace(allowList)
	if allowList == "" {
		return nil, nil
	}

	var networks AllowList
	for _, part := range strings.Split(allowList, ",") {
		entry := strings.TrimSpace(part)
		switch entry {
		case "":
			continue
		case "*":
			return nil, nil
		}

		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			networks = append(networks, network)
			continue
		}

		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address %q", entry)
		}
		var mask net.IPMask
		if ip.To4() != nil {
			ip = ip.To4()
			mask = net.CIDRMask(32, 32)
		} else {
			mask = net.CIDRMask(128, 128)
		}
		networks = append(networks, &net.IPNet{IP: ip.Mask(mask), Mask: mask})
	}
	return networks, nil
}

// Allows reports whether ip is in the list.
func (l AllowList) Allows(ip string) bool {
	if l == nil {
		return true
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, network := range l {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// RestrictIPs rejects clients outside the allow list with 403.
func RestrictIPs(list AllowList) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !list.Allows(ip) {
				logging.WithComponent("ip-restrict").Warn().
					Str("ip", logutil.SanitizeForLog(ip)).
					Str("path", logutil.SanitizeForLog(r.URL.Path)).
					Msg("IP not allowed")
				writeError(w, http.StatusForbidden, "Access denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of r.RemoteAddr. Behind a proxy the router
// rewrites RemoteAddr from X-Forwarded-For first.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
