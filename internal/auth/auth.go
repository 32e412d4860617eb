// Package auth hashes staff passwords and issues the signed session tokens
// that the HTTP layer verifies on every API call.
//
// Tokens are HS256 JWTs. The subject is the account ID (the auth UID linked
// from users.auth_uid) and the token ID names the server-side session record,
// so signing out revokes a token before it expires.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/tbourn/pst-admin-backend/internal/config"
)

// MinPasswordLen is the shortest accepted password.
const MinPasswordLen = 6

var (
	// ErrInvalidToken covers malformed, expired, or wrongly signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrWeakPassword is returned by HashPassword for short passwords.
	ErrWeakPassword = fmt.Errorf("auth: password must be at least %d characters", MinPasswordLen)

	// ErrMismatch is returned when a password does not match its hash.
	ErrMismatch = errors.New("auth: password mismatch")
)

// HashPassword returns a bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrWeakPassword
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword compares password against hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrMismatch
	}
	return nil
}

// Claims are the session token claims.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Session is a freshly issued token.
type Session struct {
	Token     string    `json:"access_token"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer signs and verifies session tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an Issuer from cfg.
func NewIssuer(cfg config.AuthConfig) *Issuer {
	return &Issuer{secret: []byte(cfg.JWTSecret), issuer: cfg.Issuer, ttl: cfg.SessionTTL, now: time.Now}
}

// TTL returns the session lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for accountID.
func (i *Issuer) Issue(accountID, email string) (*Session, error) {
	now := i.now().UTC()
	exp := now.Add(i.ttl)
	jti := uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    i.issuer,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("auth: sign token: %w", err)
	}
	return &Session{Token: tok, TokenID: jti, ExpiresAt: exp}, nil
}

// Parse verifies a token and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !t.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
