// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements bearer-token authentication. The token is taken from
// the Authorization header or, for EventSource and WebSocket clients that
// cannot set headers, from the access_token query parameter. A successful
// check stores the account ID under "userID" and attaches a request-scoped
// logger to both the Gin context and the request context.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/auth"
)

const (
	ctxKeyUserID = "userID"
	ctxKeyToken  = "auth.token"

	// QueryAccessToken carries the bearer token on streaming endpoints.
	QueryAccessToken = "access_token"
)

// SessionVerifier resolves a bearer token to the account it belongs to. It
// returns an error for expired, revoked or unknown tokens.
type SessionVerifier func(ctx context.Context, token string) (accountID string, err error)

// Authenticate rejects requests without a valid session with 401.
func Authenticate(verify SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := auth.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			token = strings.TrimSpace(c.Query(QueryAccessToken))
		}
		if token == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		uid, err := verify(c.Request.Context(), token)
		if err != nil || uid == "" {
			abortUnauthorized(c, "invalid or expired session")
			return
		}

		c.Set(ctxKeyUserID, uid)
		c.Set(ctxKeyToken, token)

		bindLogger(c, LoggerFrom(c).With().Str("user_id", uid).Logger())

		c.Next()
	}
}

// UserID returns the authenticated account ID, or "".
func UserID(c *gin.Context) string { return userIDFromCtx(c) }

// Token returns the bearer token accepted by Authenticate.
func Token(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyToken)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
