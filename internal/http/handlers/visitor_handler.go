// Visitor HTTP handlers.
//
//   - GET    /visitors
//   - GET    /visitors/{id}
//   - PATCH  /visitors/{id}/status
//   - POST   /visitors/{id}/survey
//   - GET    /visitors/{id}/service-requests
//   - POST   /visitors/{id}/service-requests
//   - PUT    /service-requests/{id}
//   - DELETE /service-requests/{id}
//   - GET    /service-types
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/services"
)

// UpdateVisitorStatusRequest changes a check-in's status and assignee.
type UpdateVisitorStatusRequest struct {
	Status     string  `json:"status"      binding:"required" example:"in_progress"`
	AssignedTo *string `json:"assigned_to" example:"6d3c1c52-7d8e-4f1f-9a55-0b3c3f2d8a10"`
}

// SurveySentResponse acknowledges a satisfaction survey send.
type SurveySentResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty" example:"wamid.HBgLNjI4MTIzNDU2Nzg5FQIAERgS"`
}

// ListVisitors godoc
// @ID          listVisitors
// @Summary     List check-ins
// @Description Newest first, with member and assignee joined.
// @Tags        Visitors
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}   domain.Visitor
// @Router      /visitors [get]
func (h *Handlers) ListVisitors(c *gin.Context) {
	vs, err := h.Visitors.List(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, vs)
}

// GetVisitor godoc
// @ID          getVisitor
// @Summary     Get a check-in
// @Tags        Visitors
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Visitor ID"
// @Success     200  {object}  domain.Visitor
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /visitors/{id} [get]
func (h *Handlers) GetVisitor(c *gin.Context) {
	v, err := h.Visitors.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// UpdateVisitorStatus godoc
// @ID          updateVisitorStatus
// @Summary     Change a check-in's status
// @Tags        Visitors
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                                true  "Visitor ID"
// @Param       body  body      handlers.UpdateVisitorStatusRequest  true  "Status"
// @Success     200   {object}  domain.Visitor
// @Failure     400   {object}  handlers.ErrorResponse  "Unknown status"
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /visitors/{id}/status [patch]
func (h *Handlers) UpdateVisitorStatus(c *gin.Context) {
	var req UpdateVisitorStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	v, err := h.Visitors.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.AssignedTo)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// SendVisitorSurvey godoc
// @ID          sendVisitorSurvey
// @Summary     Send the satisfaction survey link
// @Description Sends the survey link to the visitor's member phone through the gateway.
// @Tags        Visitors
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Visitor ID"
// @Success     200  {object}  handlers.SurveySentResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Member has no valid phone"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     502  {object}  handlers.ErrorResponse  "Gateway error"
// @Router      /visitors/{id}/survey [post]
func (h *Handlers) SendVisitorSurvey(c *gin.Context) {
	resp, err := h.Visitors.SendSatisfactionSurvey(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SurveySentResponse{Success: true, MessageID: resp.MessageID()})
}

// ListServiceRequests godoc
// @ID          listServiceRequests
// @Summary     Service requests of a check-in
// @Tags        Visitors
// @Produce     json
// @Security    BearerAuth
// @Param       id   path      string  true  "Visitor ID"
// @Success     200  {array}   domain.ServiceRequest
// @Router      /visitors/{id}/service-requests [get]
func (h *Handlers) ListServiceRequests(c *gin.Context) {
	rs, err := h.Visitors.ServiceRequests(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, rs)
}

// CreateServiceRequest godoc
// @ID          createServiceRequest
// @Summary     Open a service request for a check-in
// @Tags        Visitors
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                        true  "Visitor ID"
// @Param       body  body      services.ServiceRequestInput  true  "Request"
// @Success     201   {object}  domain.ServiceRequest
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /visitors/{id}/service-requests [post]
func (h *Handlers) CreateServiceRequest(c *gin.Context) {
	var in services.ServiceRequestInput
	if !bindJSON(c, &in) {
		return
	}
	r, err := h.Visitors.CreateServiceRequest(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// UpdateServiceRequest godoc
// @ID          updateServiceRequest
// @Summary     Edit a service request
// @Tags        Visitors
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path      string                        true  "Service request ID"
// @Param       body  body      services.ServiceRequestPatch  true  "Fields to change"
// @Success     200   {object}  domain.ServiceRequest
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse
// @Router      /service-requests/{id} [put]
func (h *Handlers) UpdateServiceRequest(c *gin.Context) {
	var p services.ServiceRequestPatch
	if !bindJSON(c, &p) {
		return
	}
	r, err := h.Visitors.UpdateServiceRequest(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}

// DeleteServiceRequest godoc
// @ID          deleteServiceRequest
// @Summary     Delete a service request
// @Tags        Visitors
// @Security    BearerAuth
// @Param       id   path  string  true  "Service request ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /service-requests/{id} [delete]
func (h *Handlers) DeleteServiceRequest(c *gin.Context) {
	if err := h.Visitors.DeleteServiceRequest(c.Request.Context(), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListServiceTypes godoc
// @ID          listServiceTypes
// @Summary     Service types offered to visitors
// @Tags        Visitors
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  domain.ServiceType
// @Router      /service-types [get]
func (h *Handlers) ListServiceTypes(c *gin.Context) {
	ts, err := h.Visitors.ServiceTypes(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ts)
}
