package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
	"github.com/fundacion-aprender/portal-api/pkg/export"
)

// ExportFormat selects the rendered output for an export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type enrollmentLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type satisfactionLister interface {
	ListSatisfactionByWorkshop(ctx context.Context, workshopID string) ([]models.SatisfactionRecord, error)
}

type tabularRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type documentRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered export ready to stream to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders staff reports as CSV or PDF.
type ExportService struct {
	enrollments enrollmentLister
	surveys     satisfactionLister
	csv         tabularRenderer
	pdf         documentRenderer
	logger      *zap.Logger
}

// NewExportService creates an instance of ExportService.
func NewExportService(enrollments enrollmentLister, surveys satisfactionLister, csv tabularRenderer, pdf documentRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{enrollments: enrollments, surveys: surveys, csv: csv, pdf: pdf, logger: logger}
}

func (s *ExportService) render(dataset export.Dataset, name string, format ExportFormat) (*ExportFile, error) {
	switch format {
	case ExportFormatPDF:
		data, err := s.pdf.Render(dataset, name)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
		}
		return &ExportFile{Filename: name + ".pdf", ContentType: "application/pdf", Data: data}, nil
	case ExportFormatCSV, "":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
		}
		return &ExportFile{Filename: name + ".csv", ContentType: "text/csv", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

// Enrollments exports the enrollment list matching the filter.
func (s *ExportService) Enrollments(ctx context.Context, filter models.EnrollmentFilter, format ExportFormat) (*ExportFile, error) {
	filter.Page = 1
	filter.PageSize = 100
	var rows []map[string]string
	for {
		page, total, err := s.enrollments.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
		}
		for _, e := range page {
			rows = append(rows, map[string]string{
				"Taller":      e.WorkshopTitle,
				"Participante": e.UserName,
				"Email":       e.UserEmail,
				"Estado":      string(e.Status),
				"Asistió":     boolText(e.Attended),
				"Inscripción": e.CreatedAt.Format("02/01/2006 15:04"),
			})
		}
		if len(rows) >= total || len(page) == 0 {
			break
		}
		filter.Page++
	}

	dataset := export.Dataset{
		Headers: []string{"Taller", "Participante", "Email", "Estado", "Asistió", "Inscripción"},
		Rows:    rows,
	}
	return s.render(dataset, "inscripciones", format)
}

// SurveyResults exports the satisfaction projection for a workshop.
func (s *ExportService) SurveyResults(ctx context.Context, workshopID string, format ExportFormat) (*ExportFile, error) {
	records, err := s.surveys.ListSatisfactionByWorkshop(ctx, workshopID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey results")
	}

	rows := make([]map[string]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]string{
			"Usuario":    r.UserID,
			"Puntaje":    strconv.FormatFloat(r.Score, 'f', 1, 64),
			"Comentario": r.Comment,
			"Fecha":      r.CreatedAt.Format("02/01/2006 15:04"),
		})
	}

	dataset := export.Dataset{
		Headers: []string{"Usuario", "Puntaje", "Comentario", "Fecha"},
		Rows:    rows,
	}
	return s.render(dataset, "resultados_encuesta", format)
}

func boolText(b bool) string {
	if b {
		return "Sí"
	}
	return "No"
}
