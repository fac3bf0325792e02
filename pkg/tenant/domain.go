package tenant

import (
	"net"
	"net/http"
	"net/textproto"
	"strings"

	"golang.org/x/net/idna"
)

// Inbound headers, checked in this order.
const (
	HeaderDomainOverride = "X-Tenant-Domain"
	HeaderOriginalHost   = "X-Original-Host"
	HeaderHost           = "Host"
)

// Outbound advisory headers set after a successful resolution.
// They are diagnostics only and must never be trusted for authorization.
const (
	HeaderTenantID     = "X-Tenant-ID"
	HeaderTenantName   = "X-Tenant-Name"
	HeaderTenantDomain = "X-Tenant-Domain"
	HeaderMatchType    = "X-Domain-Match-Type"
	HeaderIsSuperAdmin = "X-Is-Super-Admin"
)

// maxDomainLength is the DNS limit for a full host name.
const maxDomainLength = 253

// forwardingHeaders lists the headers that may replace Host, highest priority first.
var forwardingHeaders = []string{HeaderDomainOverride, HeaderOriginalHost}

// DomainFromHeaders returns the candidate domain of a request in normalized form.
// The override header wins over the original-host header, which wins over host.
// Both forwarding headers are honored, so only use it on headers set by a
// trusted proxy. Since net/http moves the Host header into Request.Host,
// callers holding a request should use DomainFromRequest instead.
func DomainFromHeaders(h http.Header) string {
	return domainFrom(h, h.Get(HeaderHost), forwardingHeaders)
}

// DomainFromRequest is DomainFromHeaders with Request.Host as the host header.
func DomainFromRequest(r *http.Request) string {
	return domainFrom(r.Header, requestHost(r), forwardingHeaders)
}

// domainFrom checks the trusted forwarding headers in priority order and
// falls back to host.
func domainFrom(h http.Header, host string, trusted []string) string {
	for _, name := range trusted {
		if v := h.Get(name); strings.TrimSpace(v) != "" {
			return NormalizeDomain(v)
		}
	}
	return NormalizeDomain(host)
}

func requestHost(r *http.Request) string {
	if r.Host != "" {
		return r.Host
	}
	return r.Header.Get(HeaderHost)
}

// trustedForwardingHeaders keeps the known forwarding headers among names,
// in their fixed priority order.
func trustedForwardingHeaders(names []string) []string {
	enabled := make(map[string]bool, len(names))
	for _, n := range names {
		enabled[textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(n))] = true
	}

	var trusted []string
	for _, h := range forwardingHeaders {
		if enabled[textproto.CanonicalMIMEHeaderKey(h)] {
			trusted = append(trusted, h)
		}
	}
	return trusted
}

// NormalizeDomain turns a raw host value into the canonical lookup key:
// first value of a comma separated list, port stripped, lower-cased,
// trailing dot removed and internationalized names converted to punycode.
// It returns an empty string for values that are not valid hosts.
func NormalizeDomain(raw string) string {
	host := strings.TrimSpace(raw)
	if i := strings.IndexByte(host, ','); i >= 0 {
		host = strings.TrimSpace(host[:i])
	}
	if host == "" {
		return ""
	}

	host = stripPort(host)
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" || len(host) > maxDomainLength {
		return ""
	}

	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return ""
	}
	return ascii
}

func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if h, _, err := net.SplitHostPort(host); err == nil {
			return h
		}
		return strings.Trim(host, "[]")
	}
	// A bare IPv6 address has several colons and no port to strip.
	if strings.Count(host, ":") == 1 {
		h, _, _ := strings.Cut(host, ":")
		return h
	}
	return host
}

// SetResponseHeaders writes the advisory diagnostics headers for rc.
func SetResponseHeaders(w http.ResponseWriter, rc ResolutionContext) {
	h := w.Header()
	if rc.IsSuperAdmin {
		h.Set(HeaderIsSuperAdmin, "true")
		h.Set(HeaderMatchType, string(MatchSuperAdmin))
		h.Set(HeaderTenantDomain, rc.MatchedDomain)
		return
	}
	h.Set(HeaderIsSuperAdmin, "false")
	h.Set(HeaderTenantID, rc.TenantID.String())
	h.Set(HeaderTenantName, rc.TenantName)
	h.Set(HeaderTenantDomain, rc.MatchedDomain)
	h.Set(HeaderMatchType, string(rc.MatchType))
}
