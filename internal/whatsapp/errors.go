package whatsapp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned without a network call when the access
	// token or phone number ID is missing.
	ErrNotConfigured = errors.New("whatsapp: missing API credentials")

	// ErrTokenExpired matches gateway errors caused by an invalid or expired
	// access token.
	ErrTokenExpired = errors.New("whatsapp: access token expired or invalid")

	// ErrRateLimited matches throttling errors.
	ErrRateLimited = errors.New("whatsapp: rate limited")

	// ErrPermission matches errors about missing app permissions.
	ErrPermission = errors.New("whatsapp: permission denied")

	// ErrInvalidRecipient matches errors about an unreachable or
	// non-allowed recipient.
	ErrInvalidRecipient = errors.New("whatsapp: invalid recipient")
)

// APIError is the error object returned by the Graph API.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	Subcode   int    `json:"error_subcode,omitempty"`
	FBTraceID string `json:"fbtrace_id"`

	// HTTPStatus is filled from the response, not the body.
	HTTPStatus int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp API error %d (%s): %s", e.Code, e.Type, e.Message)
}

// Is maps well-known gateway codes onto the package sentinels so callers can
// use errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrTokenExpired:
		return e.Code == 190
	case ErrRateLimited:
		switch e.Code {
		case 4, 80007, 130429, 131048, 131056:
			return true
		}
		return e.HTTPStatus == 429
	case ErrPermission:
		return e.Code == 10 || (e.Code >= 200 && e.Code <= 299)
	case ErrInvalidRecipient:
		switch e.Code {
		case 131026, 131030, 131021:
			return true
		}
	}
	return false
}

// errorEnvelope is the body shape of a failed Graph API call.
type errorEnvelope struct {
	Error *APIError `json:"error"`
}
