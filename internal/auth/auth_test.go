package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/pst-admin-backend/internal/config"
)

func newIssuer() *Issuer {
	return NewIssuer(config.AuthConfig{JWTSecret: "0123456789abcdef-test", Issuer: "pst-test", SessionTTL: time.Hour})
}

func TestHashAndCheckPassword(t *testing.T) {
	_, err := HashPassword("12345")
	assert.ErrorIs(t, err, ErrWeakPassword)

	h, err := HashPassword("rahasia123")
	require.NoError(t, err)
	assert.NotEqual(t, "rahasia123", h)
	assert.NoError(t, CheckPassword(h, "rahasia123"))
	assert.ErrorIs(t, CheckPassword(h, "salah"), ErrMismatch)
	assert.ErrorIs(t, CheckPassword("not-a-hash", "x"), ErrMismatch)
}

func TestIssueAndParse(t *testing.T) {
	iss := newIssuer()
	s, err := iss.Issue("acc-1", "a@b.id")
	require.NoError(t, err)
	assert.NotEmpty(t, s.TokenID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), s.ExpiresAt, 5*time.Second)

	c, err := iss.Parse(s.Token)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", c.Subject)
	assert.Equal(t, s.TokenID, c.ID)
	assert.Equal(t, "a@b.id", c.Email)
}

func TestParse_Rejects(t *testing.T) {
	iss := newIssuer()
	s, err := iss.Issue("acc-1", "")
	require.NoError(t, err)

	other := NewIssuer(config.AuthConfig{JWTSecret: "another-secret-0000", Issuer: "pst-test", SessionTTL: time.Hour})
	_, err = other.Parse(s.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong key")

	wrongIss := NewIssuer(config.AuthConfig{JWTSecret: "0123456789abcdef-test", Issuer: "elsewhere", SessionTTL: time.Hour})
	_, err = wrongIss.Parse(s.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong issuer")

	expired := newIssuer()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue("acc-1", "")
	require.NoError(t, err)
	_, err = iss.Parse(old.Token)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "acc-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Parse(none)
	assert.ErrorIs(t, err, ErrInvalidToken, "alg none")

	_, err = iss.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	tok, ok = BearerToken("bearer   xyz ")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Bearer ", "Basic abc", "abc"} {
		_, ok := BearerToken(h)
		assert.False(t, ok, h)
	}
}
