// Message template HTTP handlers.
//
//   - GET    /templates
//   - POST   /templates
//   - GET    /templates/{id}
//   - PUT    /templates/{id}
//   - DELETE /templates/{id}
//   - GET    /templates/{id}/preview
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/services"
)

// ListTemplates godoc
// @ID       listTemplates
// @Summary  List message templates
// @Tags     Templates
// @Produce  json
// @Security BearerAuth
// @Success  200  {array}  domain.MessageTemplate
// @Router   /templates [get]
func (h *Handlers) ListTemplates(c *gin.Context) {
	out, err := h.Templates.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// GetTemplate godoc
// @ID       getTemplate
// @Summary  Get a message template
// @Tags     Templates
// @Produce  json
// @Security BearerAuth
// @Param    id   path      string  true  "Template ID"
// @Success  200  {object}  domain.MessageTemplate
// @Failure  404  {object}  handlers.ErrorResponse
// @Router   /templates/{id} [get]
func (h *Handlers) GetTemplate(c *gin.Context) {
	t, err := h.Templates.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// CreateTemplate godoc
// @ID          createTemplate
// @Summary     Create a message template
// @Description The details object is checked against the template type (text, image, cta_url, flow).
// @Tags        Templates
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      services.TemplateInput  true  "Template"
// @Success     201   {object}  domain.MessageTemplate
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     409   {object}  handlers.ErrorResponse  "Name already used"
// @Router      /templates [post]
func (h *Handlers) CreateTemplate(c *gin.Context) {
	var in services.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	t, err := h.Templates.Create(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// UpdateTemplate godoc
// @ID       updateTemplate
// @Summary  Replace a message template
// @Tags     Templates
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    id    path      string                  true  "Template ID"
// @Param    body  body      services.TemplateInput  true  "Template"
// @Success  200   {object}  domain.MessageTemplate
// @Failure  400   {object}  handlers.ErrorResponse
// @Failure  404   {object}  handlers.ErrorResponse
// @Router   /templates/{id} [put]
func (h *Handlers) UpdateTemplate(c *gin.Context) {
	var in services.TemplateInput
	if !bindJSON(c, &in) {
		return
	}
	t, err := h.Templates.Update(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// DeleteTemplate godoc
// @ID       deleteTemplate
// @Summary  Delete a message template
// @Tags     Templates
// @Security BearerAuth
// @Param    id   path  string  true  "Template ID"
// @Success  204  {string}  string  "No Content"
// @Failure  404  {object}  handlers.ErrorResponse
// @Router   /templates/{id} [delete]
func (h *Handlers) DeleteTemplate(c *gin.Context) {
	if err := h.Templates.Delete(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// PreviewTemplate godoc
// @ID          previewTemplate
// @Summary     Render a template with sample values
// @Tags        Templates
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Template ID"
// @Success     200  {object}  services.TemplatePreview
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /templates/{id}/preview [get]
func (h *Handlers) PreviewTemplate(c *gin.Context) {
	p, err := h.Templates.Preview(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}
