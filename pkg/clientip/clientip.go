package clientip

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/textproto"
	"strings"
)

// Common proxy headers, in the order they are usually trusted.
const (
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderDOConnectingIP = "DO-Connecting-IP"
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderXRealIP        = "X-Real-IP"
)

type contextKey struct{}

// WithContext attaches a client IP to ctx.
func WithContext(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, contextKey{}, ip)
}

// FromContext returns the client IP attached to ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(contextKey{}).(string)
	return ip
}

// Extractor determines the client address of a request. Proxy headers are
// only consulted when listed as trusted; otherwise the TCP peer is used.
type Extractor struct {
	headers []string
}

// New creates an Extractor that trusts the given headers in order.
// With no headers only RemoteAddr is used.
func New(trustedHeaders ...string) *Extractor {
	e := &Extractor{}
	for _, h := range trustedHeaders {
		if h = strings.TrimSpace(h); h != "" {
			e.headers = append(e.headers, textproto.CanonicalMIMEHeaderKey(h))
		}
	}
	return e
}

// FromRequest returns the normalized client IP, or "" when none is valid.
func (e *Extractor) FromRequest(r *http.Request) string {
	for _, h := range e.headers {
		value := r.Header.Get(h)
		if value == "" {
			continue
		}
		if h == HeaderXForwardedFor {
			// The left-most valid entry is the originating client.
			for part := range strings.SplitSeq(value, ",") {
				if ip := parseIP(part); ip != "" {
					return ip
				}
			}
			continue
		}
		if ip := parseIP(value); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

// Middleware stores the client IP in the request context.
func (e *Extractor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), e.FromRequest(r))))
	})
}

// LoggerExtractor returns a logger.ContextExtractor adding "client_ip".
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if ip := FromContext(ctx); ip != "" {
			return slog.String("client_ip", ip), true
		}
		return slog.Attr{}, false
	}
}

func parseIP(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return ""
	}
	return ip.String()
}
