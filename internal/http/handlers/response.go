package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/pst-admin-backend/internal/http/middleware"
	"github.com/tbourn/pst-admin-backend/internal/services"
)

// Error codes carried in ErrorResponse.Code. Clients switch on these, never
// on Message.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeConflict         = "conflict"
	ErrCodeValidation       = "validation_failed"
	ErrCodeUploadTooLarge   = "upload_too_large"
	ErrCodeGateway          = "gateway_error"
	ErrCodeSendFailed       = "send_failed"
	ErrCodeStreamFailed     = "stream_failed"
	ErrCodeInternal         = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a client report to server logs.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	Code      string `json:"code" example:"not_found"`
	Message   string `json:"message" example:"contact not found"`
}

// fail aborts with the error envelope. 5xx responses are logged on the
// request logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("error_message", msg).
			Msg("request failed")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer NoRoute/NoMethod with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

var kindStatus = map[services.ErrorKind]struct {
	status int
	code   string
}{
	services.KindNotFound:     {http.StatusNotFound, ErrCodeNotFound},
	services.KindInvalid:      {http.StatusBadRequest, ErrCodeBadRequest},
	services.KindConflict:     {http.StatusConflict, ErrCodeConflict},
	services.KindUnauthorized: {http.StatusUnauthorized, ErrCodeUnauthorized},
	services.KindGateway:      {http.StatusBadGateway, ErrCodeGateway},
}

// msgInternal replaces the cause of every backend failure on the wire.
const msgInternal = "internal server error"

// statusFor maps a service kind to its HTTP status and code. Backend and
// unclassified kinds are 500.
func statusFor(kind services.ErrorKind) (int, string) {
	if m, known := kindStatus[kind]; known {
		return m.status, m.code
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// failErr classifies a service error. Backend failures answer with a generic
// message; the cause goes to the log only.
func failErr(c *gin.Context, err error) {
	status, code := statusFor(services.KindOf(err))
	if status == http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().Err(err).Msg("backend failure")
		fail(c, status, code, msgInternal)
		return
	}
	fail(c, status, code, err.Error())
}

// bindJSON decodes the body into dst, answering 400 itself on failure.
// Validator failures get ErrCodeValidation, malformed JSON ErrCodeBadRequest.
func bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	var verr validator.ValidationErrors
	if errors.As(err, &verr) {
		fail(c, http.StatusBadRequest, ErrCodeValidation, verr.Error())
	} else {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
	}
	return false
}
