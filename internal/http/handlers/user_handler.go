// Staff user and member HTTP handlers.
//
//   - GET    /users
//   - POST   /users
//   - PUT    /users/{id}
//   - DELETE /users/{id}
//   - GET    /members
//   - GET    /members/{id}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/services"
)

// ListUsers godoc
// @ID          listUsers
// @Summary     List staff users
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.User
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /users [get]
func (h *Handlers) ListUsers(c *gin.Context) {
	users, err := h.Users.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, users)
}

// CreateUser godoc
// @ID          createUser
// @Summary     Create a staff user
// @Description Creates the sign-in account and the staff profile together.
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.CreateUserInput  true  "New user"
// @Success     201   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "E-mail already in use"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var in services.CreateUserInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.Users.Create(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, u)
}

// UpdateUser godoc
// @ID          updateUser
// @Summary     Edit a staff user
// @Tags        Users
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                    true  "User ID"
// @Param       body  body      services.UpdateUserInput  true  "Fields to change"
// @Success     200   {object}  domain.User
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /users/{id} [put]
func (h *Handlers) UpdateUser(c *gin.Context) {
	var in services.UpdateUserInput
	if !bindJSON(c, &in) {
		return
	}
	u, err := h.Users.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// DeleteUser godoc
// @ID          deleteUser
// @Summary     Delete a staff user and its account
// @Tags        Users
// @Security    BearerAuth
// @Param       id   path  string  true  "User ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /users/{id} [delete]
func (h *Handlers) DeleteUser(c *gin.Context) {
	if err := h.Users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListMembers godoc
// @ID          listMembers
// @Summary     List registered members
// @Tags        Members
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.Member
// @Router      /members [get]
func (h *Handlers) ListMembers(c *gin.Context) {
	ms, err := h.Members.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ms)
}

// GetMember godoc
// @ID          getMember
// @Summary     Get a member
// @Tags        Members
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Member ID"
// @Success     200  {object}  domain.Member
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /members/{id} [get]
func (h *Handlers) GetMember(c *gin.Context) {
	m, err := h.Members.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}
