package middleware

// Idempotency-Key handling for outbound message sends. The middleware only
// validates the header and flags replays; the message handler decides what a
// replay returns, and the store behind IdempotencyLookup owns expiry.

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HeaderIdempotencyKey carries the client's retry token on POST sends.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"

	defaultIdemKeyMax = 200
)

var defaultIdemKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	key := asString(c.Value(ctxKeyIdemKey))
	return key, key != ""
}

// IsReplay reports whether a send with the same staff user, contact and key
// already completed inside the retention window.
func IsReplay(c *gin.Context) bool {
	replay, _ := c.Value(ctxKeyIdemReplay).(bool)
	return replay
}

// IdempotencyOptions tunes key validation. Zero values use a 200 byte cap and
// a token charset of letters, digits and ._~-:
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether (userID, contactID, key) has a live record
// at now. Errors are logged and treated as "no record".
type IdempotencyLookup func(ctx context.Context, userID, contactID, key string, now time.Time) (bool, error)

// IdempotencyValidator rejects malformed keys with 400 and marks replays so
// the rate limiter lets them through and the handler can answer from the
// stored message. Requests without the header, or without a signed-in user,
// pass untouched.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	if opts.MaxLen <= 0 {
		opts.MaxLen = defaultIdemKeyMax
	}
	if opts.Pattern == nil {
		opts.Pattern = defaultIdemKeyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		switch {
		case key == "":
			c.Next()
			return
		case len(key) > opts.MaxLen, !opts.Pattern.MatchString(key):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": requestIDOf(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		uid := userIDFromCtx(c)
		if lookup == nil || uid == "" {
			c.Next()
			return
		}
		found, err := lookup(c.Request.Context(), uid, c.Param("id"), key, time.Now().UTC())
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Msg("idempotency lookup failed")
		}
		if found {
			c.Set(ctxKeyIdemReplay, true)
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	}
}

func userIDFromCtx(c *gin.Context) string {
	return asString(c.Value(ctxKeyUserID))
}
