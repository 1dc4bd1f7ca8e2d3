package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/fundacion-aprender/portal-api/internal/models"
	"github.com/fundacion-aprender/portal-api/internal/service"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
	"github.com/fundacion-aprender/portal-api/pkg/response"
)

// ExportHandler streams staff report downloads.
type ExportHandler struct {
	exports *service.ExportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports *service.ExportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

func exportFormat(c *gin.Context) service.ExportFormat {
	return service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
}

func serveExport(c *gin.Context, file *service.ExportFile) {
	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(200, file.ContentType, file.Data)
}

// Enrollments godoc
// @Summary Export enrollments
// @Tags Exports
// @Produce text/csv
// @Param workshopId query string false "Filter by workshop"
// @Param status query string false "Filter by status"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /exports/enrollments [get]
func (h *ExportHandler) Enrollments(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.WorkshopID = c.Query("workshopId")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))

	file, err := h.exports.Enrollments(c.Request.Context(), filter, exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, file)
}

// SurveyResults godoc
// @Summary Export survey results
// @Tags Exports
// @Produce text/csv
// @Param workshopId query string true "Workshop ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /exports/survey-results [get]
func (h *ExportHandler) SurveyResults(c *gin.Context) {
	workshopID := c.Query("workshopId")
	if workshopID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "workshopId is required"))
		return
	}

	file, err := h.exports.SurveyResults(c.Request.Context(), workshopID, exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, file)
}
