// Survey definition HTTP handlers.
//
// Surveys form a two-level tree: parent surveys group leaf surveys, leaf
// surveys carry details, and details carry paid activities. Periods and
// period types classify surveys. Identifiers are numeric.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/pst-admin-backend/internal/services"
)

// PeriodTypeRequest names a period type.
type PeriodTypeRequest struct {
	Name string `json:"nama_tipe" binding:"required" example:"Triwulanan"`
}

//
// Period types
//

// ListPeriodTypes godoc
// @ID       listPeriodTypes
// @Summary  List period types
// @Tags     Surveys
// @Produce  json
// @Security BearerAuth
// @Success  200  {array}  domain.PeriodType
// @Router   /period-types [get]
func (h *Handlers) ListPeriodTypes(c *gin.Context) {
	out, err := h.Surveys.PeriodTypes(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// CreatePeriodType godoc
// @ID       createPeriodType
// @Summary  Create a period type
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body  body      handlers.PeriodTypeRequest  true  "Name"
// @Success  201   {object}  domain.PeriodType
// @Failure  400   {object}  handlers.ErrorResponse
// @Router   /period-types [post]
func (h *Handlers) CreatePeriodType(c *gin.Context) {
	var req PeriodTypeRequest
	if !bindJSON(c, &req) {
		return
	}
	pt, err := h.Surveys.CreatePeriodType(c.Request.Context(), req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, pt)
}

// UpdatePeriodType godoc
// @ID       updatePeriodType
// @Summary  Rename a period type
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    id    path      int                   true  "Period type ID"
// @Param    body  body      handlers.PeriodTypeRequest  true  "Name"
// @Success  200   {object}  domain.PeriodType
// @Failure  404   {object}  handlers.ErrorResponse
// @Router   /period-types/{id} [put]
func (h *Handlers) UpdatePeriodType(c *gin.Context) {
	id, okID := int64Param(c, "id")
	if !okID {
		return
	}
	var req PeriodTypeRequest
	if !bindJSON(c, &req) {
		return
	}
	pt, err := h.Surveys.UpdatePeriodType(c.Request.Context(), id, req.Name)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, pt)
}

// DeletePeriodType godoc
// @ID       deletePeriodType
// @Summary  Delete a period type
// @Tags     Surveys
// @Security BearerAuth
// @Param    id   path  int  true  "Period type ID"
// @Success  204  {string}  string  "No Content"
// @Router   /period-types/{id} [delete]
func (h *Handlers) DeletePeriodType(c *gin.Context) {
	id, okID := int64Param(c, "id")
	if !okID {
		return
	}
	if err := h.Surveys.DeletePeriodType(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

//
// Periods
//

// ListPeriods godoc
// @ID       listPeriods
// @Summary  List periods
// @Tags     Surveys
// @Produce  json
// @Security BearerAuth
// @Success  200  {array}  domain.Period
// @Router   /periods [get]
func (h *Handlers) ListPeriods(c *gin.Context) {
	out, err := h.Surveys.Periods(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// CreatePeriod godoc
// @ID       createPeriod
// @Summary  Create a period
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body  body      services.PeriodInput  true  "Period"
// @Success  201   {object}  domain.Period
// @Failure  400   {object}  handlers.ErrorResponse
// @Router   /periods [post]
func (h *Handlers) CreatePeriod(c *gin.Context) {
	var in services.PeriodInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.Surveys.CreatePeriod(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// UpdatePeriod godoc
// @ID       updatePeriod
// @Summary  Replace a period
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    id    path      int                   true  "Period ID"
// @Param    body  body      services.PeriodInput  true  "Period"
// @Success  200   {object}  domain.Period
// @Failure  404   {object}  handlers.ErrorResponse
// @Router   /periods/{id} [put]
func (h *Handlers) UpdatePeriod(c *gin.Context) {
	id, okID := int64Param(c, "id")
	if !okID {
		return
	}
	var in services.PeriodInput
	if !bindJSON(c, &in) {
		return
	}
	p, err := h.Surveys.UpdatePeriod(c.Request.Context(), id, in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePeriod godoc
// @ID       deletePeriod
// @Summary  Delete a period
// @Tags     Surveys
// @Security BearerAuth
// @Param    id   path  int  true  "Period ID"
// @Success  204  {string}  string  "No Content"
// @Router   /periods/{id} [delete]
func (h *Handlers) DeletePeriod(c *gin.Context) {
	id, okID := int64Param(c, "id")
	if !okID {
		return
	}
	if err := h.Surveys.DeletePeriod(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

//
// Surveys
//

// ListSurveys godoc
// @ID       listSurveys
// @Summary  List surveys
// @Tags     Surveys
// @Produce  json
// @Security BearerAuth
// @Success  200  {array}  domain.Survey
// @Router   /surveys [get]
func (h *Handlers) ListSurveys(c *gin.Context) {
	out, err := h.Surveys.Surveys(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// SurveyTree godoc
// @ID          surveyTree
// @Summary     Surveys as a tree
// @Description Top-level surveys with their children. Orphans whose parent is gone are listed at the top level.
// @Tags        Surveys
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  services.SurveyNode
// @Router      /surveys/tree [get]
func (h *Handlers) SurveyTree(c *gin.Context) {
	out, err := h.Surveys.SurveyTree(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// CreateSurvey godoc
// @ID       createSurvey
// @Summary  Create a survey
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body  body      services.SurveyInput  true  "Survey"
// @Success  201   {object}  domain.Survey
// @Failure  400   {object}  handlers.ErrorResponse  "Invalid parent"
// @Router   /surveys [post]
func (h *Handlers) CreateSurvey(c *gin.Context) {
	var in services.SurveyInput
	if !bindJSON(c, &in) {
		return
	}
	s, err := h.Surveys.CreateSurvey(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, s)
}

// UpdateSurvey godoc
// @ID       updateSurvey
// @Summary  Replace a survey
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    id    path      int                   true  "Survey ID"
// @Param    body  body      services.SurveyInput  true  "Survey"
// @Success  200   {object}  domain.Survey
// @Failure  400   {object}  handlers.ErrorResponse
// @Failure  404   {object}  handlers.ErrorResponse
// @Router   /surveys/{id} [put]
func (h *Handlers) UpdateSurvey(c *gin.Context) {
	id, okID := int64Param(c, "id")
	if !okID {
		return
	}
	var in services.SurveyInput
	if !bindJSON(c, &in) {
		return
	}
	s, err := h.Surveys.UpdateSurvey(c.Request.Context(), id, in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, s)
}

// DeleteSurvey godoc
// @ID          deleteSurvey
// @Summary     Delete a survey
// @Description Hard delete. Details that referenced the survey are kept without it.
// @Tags        Surveys
// @Security    BearerAuth
// @Param       id   path  int  true  "Survey ID"
// @Success     204  {string}  string  "No Content"
// @Router      /surveys/{id} [delete]
func (h *Handlers) DeleteSurvey(c *gin.Context) {
	id, okID := int64Param(c, "id")
	if !okID {
		return
	}
	if err := h.Surveys.DeleteSurvey(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

//
// Survey details
//

// ListSurveyDetails godoc
// @ID       listSurveyDetails
// @Summary  List survey details
// @Tags     Surveys
// @Produce  json
// @Security BearerAuth
// @Success  200  {array}  domain.SurveyDetail
// @Router   /survey-details [get]
func (h *Handlers) ListSurveyDetails(c *gin.Context) {
	out, err := h.Surveys.SurveyDetails(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// CreateSurveyDetail godoc
// @ID       createSurveyDetail
// @Summary  Add a detail to a leaf survey
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body  body      services.SurveyDetailInput  true  "Detail"
// @Success  201   {object}  domain.SurveyDetail
// @Failure  400   {object}  handlers.ErrorResponse  "Survey is a parent"
// @Failure  404   {object}  handlers.ErrorResponse
// @Router   /survey-details [post]
func (h *Handlers) CreateSurveyDetail(c *gin.Context) {
	var in services.SurveyDetailInput
	if !bindJSON(c, &in) {
		return
	}
	d, err := h.Surveys.CreateSurveyDetail(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, d)
}

//
// Activities
//

// ListActivities godoc
// @ID          listActivities
// @Summary     List active activities
// @Description Each activity carries its detail and survey and a formatted pay rate (honor_text).
// @Tags        Surveys
// @Produce     json
// @Security    BearerAuth
// @Success     200  {array}  services.ActivityView
// @Router      /activities [get]
func (h *Handlers) ListActivities(c *gin.Context) {
	out, err := h.Surveys.Activities(c.Request.Context())
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// CreateActivity godoc
// @ID       createActivity
// @Summary  Create an activity
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    body  body      services.ActivityInput  true  "Activity"
// @Success  201   {object}  domain.Activity
// @Failure  400   {object}  handlers.ErrorResponse
// @Router   /activities [post]
func (h *Handlers) CreateActivity(c *gin.Context) {
	var in services.ActivityInput
	if !bindJSON(c, &in) {
		return
	}
	a, err := h.Surveys.CreateActivity(c.Request.Context(), in)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, a)
}

// UpdateActivity godoc
// @ID       updateActivity
// @Summary  Edit an activity
// @Tags     Surveys
// @Accept   json
// @Produce  json
// @Security BearerAuth
// @Param    id    path      int                     true  "Activity ID"
// @Param    body  body      services.ActivityPatch  true  "Fields to change"
// @Success  200   {object}  domain.Activity
// @Failure  404   {object}  handlers.ErrorResponse
// @Router   /activities/{id} [put]
func (h *Handlers) UpdateActivity(c *gin.Context) {
	id, okID := int64Param(c, "id")
	if !okID {
		return
	}
	var p services.ActivityPatch
	if !bindJSON(c, &p) {
		return
	}
	a, err := h.Surveys.UpdateActivity(c.Request.Context(), id, p)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, a)
}

// DeleteActivity godoc
// @ID          deleteActivity
// @Summary     Deactivate an activity
// @Description Soft delete; the row stays but no longer appears in the list.
// @Tags        Surveys
// @Security    BearerAuth
// @Param       id   path  int  true  "Activity ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /activities/{id} [delete]
func (h *Handlers) DeleteActivity(c *gin.Context) {
	id, okID := int64Param(c, "id")
	if !okID {
		return
	}
	if err := h.Surveys.DeleteActivity(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
