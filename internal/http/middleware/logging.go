// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file covers request correlation and logging:
//
//   - RequestID tags each request with an X-Request-ID and binds a zerolog
//     logger carrying it to both the Gin context and the request context, so
//     handlers (LoggerFrom) and services (zerolog.Ctx) log with the same id.
//   - AccessLog writes one structured line per request. Query strings and
//     header values are scrubbed of e-mail addresses, phone numbers, WhatsApp
//     message ids and UUIDs; credential headers and token query parameters are
//     masked outright. Bodies are never logged.
//   - Recovery turns panics into the standard JSON 500 envelope.
//
// Install them in that order so panics and access lines carry the id.
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	maxRequestIDLen   = 128
	maxQueryLogLength = 2048
)

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)

// RequestID reuses a well-formed inbound X-Request-ID or mints a UUID, echoes
// it on the response and binds the request logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" || len(rid) > maxRequestIDLen || !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		bindLogger(c, log.With().Str("request_id", rid).Logger())
		c.Next()
	}
}

// AccessLogOptions tunes AccessLog.
type AccessLogOptions struct {
	// MaskHeaders are masked in addition to Authorization, Cookie and
	// Set-Cookie. Case-insensitive.
	MaskHeaders []string
	// MaskQuery names query parameters whose values are masked.
	MaskQuery []string
	// QuietPaths are logged at debug level on success (health, metrics).
	QuietPaths []string
}

// AccessLog emits one line per request after the handler chain finishes:
// info for success, warn for 4xx, error for 5xx or when handlers recorded
// gin errors.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	scrub := newScrubber()
	headers := toSet(append([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders...), strings.ToLower)
	params := toSet(opts.MaskQuery, nil)
	quiet := toSet(opts.QuietPaths, nil)

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		query := truncate(scrub(maskQuery(c.Request.URL.RawQuery, params)), maxQueryLogLength)

		hdrs := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := headers[strings.ToLower(k)]; ok {
				hdrs[k] = "[REDACTED]"
				continue
			}
			hdrs[k] = scrub(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = log.Error().Str("errors", c.Errors.String())
		case status >= http.StatusInternalServerError:
			ev = log.Error()
		case status >= http.StatusBadRequest:
			ev = log.Warn()
		default:
			if _, ok := quiet[route]; ok {
				ev = log.Debug()
			} else {
				ev = log.Info()
			}
		}

		ev.
			Str("request_id", requestIDOf(c)).
			Str("user_id", userIDFromCtx(c)).
			Str("method", c.Request.Method).
			Str("path", route).
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", hdrs).
			Msg("http_request")
	}
}

// Recovery logs the panic with its stack and answers with the JSON 500
// envelope when nothing was written yet.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := requestIDOf(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request logger, or the global logger when none is
// bound.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func bindLogger(c *gin.Context, l zerolog.Logger) {
	c.Set(loggerKey, &l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

func requestIDOf(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s := asString(v); s != "" {
			return s
		}
	}
	if rid := c.Writer.Header().Get(requestIDHeader); rid != "" {
		return rid
	}
	return c.GetHeader(requestIDHeader)
}

// newScrubber replaces identifiers with typed placeholders. UUIDs and message
// ids go first so the phone patterns never see their digit runs.
func newScrubber() func(string) string {
	rules := []struct {
		re   *regexp.Regexp
		with string
	}{
		{regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`), "[REDACTED:id]"},
		{regexp.MustCompile(`\bwamid\.[A-Za-z0-9=_\-]+`), "[REDACTED:wamid]"},
		{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), "[REDACTED:email]"},
		// Indonesian mobile numbers: +62 / 62 / 0 followed by 8xx.
		{regexp.MustCompile(`(?:\+62|\b62|\b0)8\d{1,3}[ .\-]?\d{3,4}[ .\-]?\d{3,5}\b`), "[REDACTED:phone]"},
		// Any other long digit run (foreign wa_id, phone without prefix).
		{regexp.MustCompile(`\b\d{10,15}\b`), "[REDACTED:phone]"},
	}
	return func(s string) string {
		for _, r := range rules {
			if s == "" {
				return s
			}
			s = r.re.ReplaceAllString(s, r.with)
		}
		return s
	}
}

// maskQuery replaces the values of the named parameters and leaves the rest
// of the raw query byte-for-byte intact.
func maskQuery(raw string, keys map[string]struct{}) string {
	if raw == "" || len(keys) == 0 {
		return raw
	}
	parts := strings.Split(raw, "&")
	for i, p := range parts {
		k, _, _ := strings.Cut(p, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}
		if _, ok := keys[k]; ok {
			parts[i] = url.QueryEscape(k) + "=" + url.QueryEscape("[REDACTED]")
		}
	}
	return strings.Join(parts, "&")
}

func toSet(vals []string, norm func(string) string) map[string]struct{} {
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(v)
		if norm != nil {
			v = norm(v)
		}
		if v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
