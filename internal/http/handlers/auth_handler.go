// Auth HTTP handlers.
//
//   - POST /auth/sign-up   (public)
//   - POST /auth/sign-in   (public)
//   - POST /auth/sign-out
//   - GET  /auth/session
//   - GET  /auth/user
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/http/middleware"
	"github.com/tbourn/pst-admin-backend/internal/services"
)

// CredentialsRequest is the sign-up and sign-in payload.
type CredentialsRequest struct {
	Email    string `json:"email"    binding:"required"  example:"petugas@pst.example.id"`
	Password string `json:"password" binding:"required"  example:"rahasia-123"`
}

// SignUp godoc
// @ID          signUp
// @Summary     Create a staff account
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     201   {object}  domain.Account
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "E-mail already registered"
// @Router      /auth/sign-up [post]
func (h *Handlers) SignUp(c *gin.Context) {
	var req CredentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.Auth.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

// SignIn godoc
// @ID          signIn
// @Summary     Open a session
// @Description Returns a bearer token for the API.
// @Tags        Auth
// @Accept      json
// @Produce     json
// @Param       body  body      handlers.CredentialsRequest  true  "Credentials"
// @Success     200   {object}  services.Session
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse  "Invalid e-mail or password"
// @Router      /auth/sign-in [post]
func (h *Handlers) SignIn(c *gin.Context) {
	var req CredentialsRequest
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.Auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// SignOut godoc
// @ID          signOut
// @Summary     Revoke the current session
// @Tags        Auth
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/sign-out [post]
func (h *Handlers) SignOut(c *gin.Context) {
	tok, _ := middleware.Token(c)
	if err := h.Auth.SignOut(c.Request.Context(), tok); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// GetSession godoc
// @ID          getSession
// @Summary     Describe the current session
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  services.Session
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /auth/session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	sess, okSess := h.session(c)
	if !okSess {
		return
	}
	ok(c, http.StatusOK, sess)
}

// GetCurrentUser godoc
// @ID          getCurrentUser
// @Summary     Staff profile of the signed-in account
// @Tags        Auth
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse  "No staff profile for this account"
// @Router      /auth/user [get]
func (h *Handlers) GetCurrentUser(c *gin.Context) {
	sess, okSess := h.session(c)
	if !okSess {
		return
	}
	u, err := h.Auth.GetUser(c.Request.Context(), sess)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

func (h *Handlers) session(c *gin.Context) (*services.Session, bool) {
	tok, _ := middleware.Token(c)
	sess, err := h.Auth.GetSession(c.Request.Context(), tok)
	if err != nil {
		failErr(c, err)
		return nil, false
	}
	return sess, true
}
