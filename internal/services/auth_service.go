// Package services – AuthService
//
// AuthService owns staff credentials and sessions. Accounts hold the bcrypt
// password hash; the staff profile in users links to an account through
// auth_uid. A session is an explicit value: the signed token plus the account
// it belongs to. Every issued token has a server-side record so SignOut can
// revoke it before expiry.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/pst-admin-backend/internal/auth"
	"github.com/tbourn/pst-admin-backend/internal/domain"
	"github.com/tbourn/pst-admin-backend/internal/repo"
)

// Session is an authenticated staff session.
type Session struct {
	Token     string    `json:"access_token"`
	TokenID   string    `json:"-"`
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Credentials are sign-up and sign-in input.
type Credentials struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthService implements sign-up, sign-in and session checks.
type AuthService struct {
	DB     *gorm.DB
	Issuer *auth.Issuer

	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, iss *auth.Issuer) *AuthService {
	return &AuthService{DB: db, Issuer: iss}
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) tracer() trace.Tracer { return otel.Tracer("services/AuthService") }

// SignUp creates an account and returns its ID (the auth UID).
func (s *AuthService) SignUp(ctx context.Context, email, password string) (*domain.Account, error) {
	ctx, span := s.tracer().Start(ctx, "SignUp")
	defer span.End()

	email = normalizeEmail(email)
	if err := check("SignUp", Credentials{Email: email, Password: password}); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, E(KindInvalid, "SignUp", err)
	}
	a := &domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	if err := repo.CreateAccount(ctx, s.DB, a); err != nil {
		return nil, notFoundOr("SignUp", err)
	}
	span.SetAttributes(attribute.String("account.id", a.ID))
	return a, nil
}

// SignIn checks the password and opens a session. Unknown e-mails and wrong
// passwords both yield ErrInvalidCredentials.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := s.tracer().Start(ctx, "SignIn")
	defer span.End()

	a, err := repo.GetAccountByEmail(ctx, s.DB, normalizeEmail(email))
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, E(KindBackend, "SignIn", err)
	}
	if err := auth.CheckPassword(a.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	tok, err := s.Issuer.Issue(a.ID, a.Email)
	if err != nil {
		return nil, E(KindBackend, "SignIn", err)
	}
	now := s.now()
	rec := &domain.SessionRecord{ID: tok.TokenID, AccountID: a.ID, ExpiresAt: tok.ExpiresAt, CreatedAt: now}
	if err := repo.CreateSession(ctx, s.DB, rec); err != nil {
		return nil, E(KindBackend, "SignIn", err)
	}
	if err := repo.TouchAccountSignIn(ctx, s.DB, a.ID, now); err != nil {
		logger(ctx).Warn().Err(err).Str("account_id", a.ID).Msg("touch account sign-in")
	}
	if err := repo.TouchLastLogin(ctx, s.DB, a.ID, now); err != nil {
		logger(ctx).Warn().Err(err).Str("account_id", a.ID).Msg("touch staff last login")
	}
	return &Session{Token: tok.Token, TokenID: tok.TokenID, AccountID: a.ID, Email: a.Email, ExpiresAt: tok.ExpiresAt}, nil
}

// GetSession verifies token and checks that its session is still open.
func (s *AuthService) GetSession(ctx context.Context, token string) (*Session, error) {
	claims, err := s.Issuer.Parse(token)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	rec, err := repo.GetActiveSession(ctx, s.DB, claims.ID, s.now())
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrSessionInvalid
		}
		return nil, E(KindBackend, "GetSession", err)
	}
	return &Session{
		Token:     strings.TrimSpace(token),
		TokenID:   rec.ID,
		AccountID: rec.AccountID,
		Email:     claims.Email,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}

// SignOut revokes the session behind token. Signing out twice is not an error.
func (s *AuthService) SignOut(ctx context.Context, token string) error {
	claims, err := s.Issuer.Parse(token)
	if err != nil {
		return ErrSessionInvalid
	}
	if err := repo.RevokeSession(ctx, s.DB, claims.ID, s.now()); err != nil {
		return E(KindBackend, "SignOut", err)
	}
	return nil
}

// GetUser returns the staff profile linked to the session's account.
func (s *AuthService) GetUser(ctx context.Context, sess *Session) (*domain.User, error) {
	if sess == nil {
		return nil, ErrSessionInvalid
	}
	u, err := repo.GetUserByAuthUID(ctx, s.DB, sess.AccountID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, E(KindBackend, "GetUser", err)
	}
	return u, nil
}

// AdminDeleteAccount removes an account and all of its sessions.
func (s *AuthService) AdminDeleteAccount(ctx context.Context, accountID string) error {
	if err := repo.DeleteAccount(ctx, s.DB, accountID); err != nil {
		return notFoundOr("AdminDeleteAccount", err)
	}
	return nil
}

// PurgeSessions drops expired and revoked session records.
func (s *AuthService) PurgeSessions(ctx context.Context) (int64, error) {
	return repo.PurgeSessions(ctx, s.DB, s.now())
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }
