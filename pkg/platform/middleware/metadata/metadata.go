// Package metadata resolves who is calling: client IP (honouring
// X-Forwarded-For only from trusted proxies), User-Agent and a coarse device class
// used on audit events.
package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"campusgate/pkg/requestcontext"
)

// MaxForwardedHeaderLength bounds X-Forwarded-For / X-Real-IP values.
const MaxForwardedHeaderLength = 500

// Device classes recorded on audit events.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Config holds configuration for the metadata middleware.
type Config struct {
	// TrustedProxies lists prefixes allowed to set forwarding headers.
	// Empty means forwarding headers are never trusted.
	TrustedProxies []netip.Prefix
}

type Middleware struct {
	trusted []netip.Prefix
}

func NewMiddleware(cfg *Config) *Middleware {
	if cfg == nil {
		return &Middleware{}
	}
	return &Middleware{trusted: cfg.TrustedProxies}
}

// Handler stores the resolved requestcontext.Client on the request context.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClient(r.Context(), requestcontext.Client{
			IP:        m.clientIP(r),
			UserAgent: ua,
			Device:    DeviceClass(ua),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	remote, ok := remoteAddr(r.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !m.isTrusted(remote) {
		return remote.String()
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		forwarded = r.Header.Get("X-Real-IP")
	}
	if forwarded == "" || len(forwarded) > MaxForwardedHeaderLength {
		return remote.String()
	}

	first, _, _ := strings.Cut(forwarded, ",")
	addr, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return remote.String()
	}
	return addr.String()
}

func (m *Middleware) isTrusted(addr netip.Addr) bool {
	for _, prefix := range m.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteAddr(raw string) (netip.Addr, bool) {
	if raw == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(strings.Trim(raw, "[]")); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

// DeviceClass maps a User-Agent string onto a coarse device class.
func DeviceClass(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return DeviceUnknown
	}
	parsed := useragent.New(ua)
	switch {
	case parsed.Bot():
		return DeviceBot
	case parsed.Mobile():
		return DeviceMobile
	default:
		return DeviceDesktop
	}
}
