package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security, and only on requests that
	// arrived over HTTPS (directly or per X-Forwarded-Proto).
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days.
	HSTSMaxAge time.Duration
	// PrivateCache marks API responses "private, no-cache": browsers may keep
	// conversation data but must revalidate it (ETag) on every use, and shared
	// proxies must not store it. Handlers that set Cache-Control win.
	PrivateCache bool
	// PublicPrefixes are path prefixes (media, API docs) exempt from
	// PrivateCache and the strict CSP.
	PublicPrefixes []string
	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

// SecurityHeaders hardens every response of the admin API. JSON responses
// get a deny-all Content-Security-Policy; the Swagger UI and stored media
// are served under PublicPrefixes and keep their own.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		public := hasAnyPrefix(c.Request.URL.Path, opt.PublicPrefixes)
		if !public {
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if opt.PrivateCache && h.Get("Cache-Control") == "" {
				h.Set("Cache-Control", "private, no-cache")
			}
		}
		c.Next()
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
