package trustedorigin

import (
	"net"
	"net/url"
	"strings"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

// NormalizeOrigin returns the canonical scheme://host[:port] form of an Origin
// header value, or an empty string when the value is not an http(s) origin.
// Default ports are dropped so "https://acme.example.com:443" equals "https://acme.example.com".
func NormalizeOrigin(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.User != nil {
		return ""
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return ""
	}

	host := tenant.NormalizeDomain(u.Hostname())
	if host == "" {
		return ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return scheme + "://" + host + ":" + port
	}
	return scheme + "://" + host
}

// expand turns a configured entry into origins. Full origins are kept as is,
// bare domains contribute both an https and an http origin.
func expand(entry string) []string {
	if strings.Contains(entry, "://") {
		if o := NormalizeOrigin(entry); o != "" {
			return []string{o}
		}
		return nil
	}
	return domainOrigins(tenant.NormalizeDomain(entry))
}

func domainOrigins(domain string) []string {
	if domain == "" {
		return nil
	}
	return []string{"https://" + domain, "http://" + domain}
}

// isLocalOrigin reports whether origin points at the local machine.
func isLocalOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
