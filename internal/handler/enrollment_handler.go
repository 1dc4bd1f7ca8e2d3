package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fundacion-aprender/portal-api/internal/models"
	"github.com/fundacion-aprender/portal-api/internal/service"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
	"github.com/fundacion-aprender/portal-api/pkg/response"
)

// EnrollmentHandler exposes enrollment endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param workshopId query string false "Filter by workshop"
// @Param userId query string false "Filter by user"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.WorkshopID = c.Query("workshopId")
	filter.UserID = c.Query("userId")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Enroll godoc
// @Summary Enroll in a workshop
// @Description Reserves a seat for the authenticated user; re-submitting while already enrolled is a no-op success
// @Tags Enrollments
// @Produce json
// @Param id path string true "Workshop ID"
// @Success 200 {object} response.Envelope
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workshops/{id}/enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	result, err := h.enrollments.Enroll(c.Request.Context(), c.Param("id"), claims.UserID, meta)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusCreated
	if result.Outcome == models.EnrollmentOutcomeAlreadyActive {
		status = http.StatusOK
	}
	response.JSON(c, status, result, nil)
}

// Withdraw godoc
// @Summary Withdraw from a workshop
// @Description Cancels the authenticated user's active enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Workshop ID"
// @Success 204 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /workshops/{id}/enrollments [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if err := h.enrollments.Withdraw(c.Request.Context(), c.Param("id"), claims.UserID, claims.UserID, meta); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// WithdrawUser godoc
// @Summary Withdraw a user from a workshop
// @Description Staff cancellation of another user's enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Workshop ID"
// @Param userId path string true "User ID"
// @Success 204 {object} response.Envelope
// @Router /workshops/{id}/enrollments/{userId} [delete]
func (h *EnrollmentHandler) WithdrawUser(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	if err := h.enrollments.Withdraw(c.Request.Context(), c.Param("id"), c.Param("userId"), claims.UserID, meta); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetAttendance godoc
// @Summary Mark attendance
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Enrollment ID"
// @Param payload body object true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id}/attendance [put]
func (h *EnrollmentHandler) SetAttendance(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload struct {
		Attended *bool `json:"attended" binding:"required"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	meta := models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
	enrollment, err := h.enrollments.SetAttendance(c.Request.Context(), c.Param("id"), *payload.Attended, claims.UserID, meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}
