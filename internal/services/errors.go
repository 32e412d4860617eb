// Package services defines the business logic for conversations, outbound
// message dispatch, staff users and sessions, visitors, survey definitions,
// message templates, notifications, and the inbound gateway webhook.
//
// This file centralizes service-level error values. Every operation returns
// (T, error); callers classify failures with KindOf instead of inspecting
// shared state. Translation into HTTP statuses happens in the handler layer.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/pst-admin-backend/internal/auth"
	"github.com/tbourn/pst-admin-backend/internal/repo"
	"github.com/tbourn/pst-admin-backend/internal/whatsapp"
)

// ErrorKind classifies a service failure.
type ErrorKind string

// Error kinds.
const (
	KindNotFound     ErrorKind = "not_found"
	KindInvalid      ErrorKind = "invalid"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindGateway      ErrorKind = "gateway"
	KindBackend      ErrorKind = "backend"
)

// Error is a classified failure of operation Op.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err as an *Error of the given kind.
func E(kind ErrorKind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Sentinel errors.
var (
	// ErrContactNotFound indicates that the contact does not exist.
	ErrContactNotFound = errors.New("contact not found")

	// ErrNoWaID is returned when a send needs the contact's messaging address
	// and the contact has none.
	ErrNoWaID = errors.New("contact has no WhatsApp address")

	// ErrUserNotFound indicates that no staff user matches the auth identifier.
	ErrUserNotFound = errors.New("staff user not found")

	// ErrEmptyContent is returned for blank message bodies.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrInvalidStatus is returned for unknown visitor statuses.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrParentSurvey is returned when a survey detail is attached to a parent
	// survey; only leaf surveys carry details and activities.
	ErrParentSurvey = errors.New("survey details can only be attached to leaf surveys")

	// ErrInvalidCredentials covers unknown e-mails and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrSessionInvalid is returned for expired, revoked or malformed tokens.
	ErrSessionInvalid = errors.New("session is invalid or expired")

	// ErrInvalidPhone is returned when a recipient number fails validation.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrBadSignature is returned when a webhook payload signature does not match.
	ErrBadSignature = errors.New("invalid webhook signature")
)

// KindOf classifies err. Unknown errors are KindBackend.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, ErrContactNotFound), errors.Is(err, ErrUserNotFound), repo.IsNotFound(err):
		return KindNotFound
	case errors.Is(err, repo.ErrDuplicate):
		return KindConflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrSessionInvalid),
		errors.Is(err, ErrBadSignature), errors.Is(err, auth.ErrInvalidToken):
		return KindUnauthorized
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrParentSurvey),
		errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrNoWaID), errors.Is(err, auth.ErrWeakPassword):
		return KindInvalid
	}
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) || errors.Is(err, whatsapp.ErrNotConfigured) {
		return KindGateway
	}
	return KindBackend
}

// notFoundOr maps a repository not-found to KindNotFound and anything else to
// KindBackend.
func notFoundOr(op string, err error) error {
	if repo.IsNotFound(err) {
		return E(KindNotFound, op, err)
	}
	if errors.Is(err, repo.ErrDuplicate) {
		return E(KindConflict, op, err)
	}
	return E(KindBackend, op, err)
}
