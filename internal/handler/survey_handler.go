package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fundacion-aprender/portal-api/internal/models"
	"github.com/fundacion-aprender/portal-api/internal/service"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
	"github.com/fundacion-aprender/portal-api/pkg/response"
)

// SurveyHandler exposes survey template and submission endpoints.
type SurveyHandler struct {
	surveys *service.SurveyService
}

// NewSurveyHandler constructs SurveyHandler.
func NewSurveyHandler(surveys *service.SurveyService) *SurveyHandler {
	return &SurveyHandler{surveys: surveys}
}

// Get godoc
// @Summary Get the survey for a workshop
// @Description Returns the resolved template (workshop override beats course-level)
// @Tags Surveys
// @Produce json
// @Param id path string true "Workshop ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /workshops/{id}/survey [get]
func (h *SurveyHandler) Get(c *gin.Context) {
	template, err := h.surveys.GetForWorkshop(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// Submit godoc
// @Summary Submit survey answers
// @Tags Surveys
// @Accept json
// @Produce json
// @Param id path string true "Workshop ID"
// @Param payload body object true "Answers payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workshops/{id}/survey [post]
func (h *SurveyHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Answers []models.SubmittedAnswer `json:"answers" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	res, err := h.surveys.Submit(c.Request.Context(), c.Param("id"), claims.UserID, payload.Answers, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// CreateTemplate godoc
// @Summary Create survey template
// @Tags Surveys
// @Accept json
// @Produce json
// @Param payload body service.CreateSurveyTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /surveys/templates [post]
func (h *SurveyHandler) CreateTemplate(c *gin.Context) {
	var req service.CreateSurveyTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	template, err := h.surveys.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// ActivateTemplate godoc
// @Summary Activate survey template
// @Description Activation deactivates sibling templates in the same scope
// @Tags Surveys
// @Produce json
// @Param id path string true "Template ID"
// @Success 204 {object} response.Envelope
// @Router /surveys/templates/{id}/activate [put]
func (h *SurveyHandler) ActivateTemplate(c *gin.Context) {
	if err := h.surveys.ActivateTemplate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Results godoc
// @Summary Survey results for a workshop
// @Tags Surveys
// @Produce json
// @Param id path string true "Workshop ID"
// @Success 200 {object} response.Envelope
// @Router /workshops/{id}/survey/results [get]
func (h *SurveyHandler) Results(c *gin.Context) {
	records, err := h.surveys.Results(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}
