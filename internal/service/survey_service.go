package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
)

type surveyRepository interface {
	FindActiveTemplateForWorkshop(ctx context.Context, workshopID string) (*models.SurveyTemplate, error)
	FindActiveTemplateForCourse(ctx context.Context, courseID string) (*models.SurveyTemplate, error)
	ListQuestions(ctx context.Context, templateID string) ([]models.SurveyQuestion, error)
	CreateTemplate(ctx context.Context, template *models.SurveyTemplate, questions []models.SurveyQuestion) error
	ActivateTemplate(ctx context.Context, id string) error
	HasResponse(ctx context.Context, workshopID, userID string) (bool, error)
	CreateResponse(ctx context.Context, response *models.SurveyResponse, answers []models.SurveyAnswer, record *models.SatisfactionRecord) error
	ListSatisfactionByWorkshop(ctx context.Context, workshopID string) ([]models.SatisfactionRecord, error)
}

type workshopReader interface {
	FindByID(ctx context.Context, id string) (*models.Workshop, error)
}

type enrollmentReader interface {
	FindByWorkshopAndUser(ctx context.Context, workshopID, userID string) (*models.Enrollment, error)
}

// CreateSurveyQuestionRequest is one question of a new template.
type CreateSurveyQuestionRequest struct {
	Type     models.SurveyQuestionType `json:"type" validate:"required,oneof=RATING_1_5 TEXTO_LIBRE OPCION_UNICA"`
	Prompt   string                    `json:"prompt" validate:"required"`
	Required bool                      `json:"required"`
	Options  []string                  `json:"options"`
}

// CreateSurveyTemplateRequest is the staff payload for defining a template.
// Exactly one of workshop_id and course_id scopes it.
type CreateSurveyTemplateRequest struct {
	Name       string                        `json:"name" validate:"required"`
	CourseID   *string                       `json:"course_id"`
	WorkshopID *string                       `json:"workshop_id"`
	Active     bool                          `json:"active"`
	Questions  []CreateSurveyQuestionRequest `json:"questions" validate:"required,min=1,dive"`
}

// SurveyService resolves templates, validates submissions and performs the
// dual write of the structured response plus the satisfaction projection.
type SurveyService struct {
	repo        surveyRepository
	workshops   workshopReader
	enrollments enrollmentReader
	validator   *validator.Validate
	metrics     *MetricsService
	effects     effectsDispatcher
	logger      *zap.Logger
}

// NewSurveyService creates an instance of SurveyService.
func NewSurveyService(repo surveyRepository, workshops workshopReader, enrollments enrollmentReader, validate *validator.Validate, metrics *MetricsService, effects effectsDispatcher, logger *zap.Logger) *SurveyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SurveyService{repo: repo, workshops: workshops, enrollments: enrollments, validator: validate, metrics: metrics, effects: effects, logger: logger}
}

// ResolveTemplate selects the survey that applies to a workshop: the newest
// active workshop-scoped template wins over the course-level one. A nil result
// with nil error means no survey applies.
func (s *SurveyService) ResolveTemplate(ctx context.Context, workshop *models.Workshop) (*models.SurveyTemplate, error) {
	template, err := s.repo.FindActiveTemplateForWorkshop(ctx, workshop.ID)
	if err == nil {
		return template, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resolve workshop template: %w", err)
	}

	template, err = s.repo.FindActiveTemplateForCourse(ctx, workshop.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve course template: %w", err)
	}
	return template, nil
}

// GetForWorkshop returns the resolved template with its questions, enforcing
// that the workshop collects a survey at all.
func (s *SurveyService) GetForWorkshop(ctx context.Context, workshopID string) (*models.SurveyTemplateDetail, error) {
	workshop, err := s.workshops.FindByID(ctx, workshopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}
	if !workshop.RequiresSurvey {
		return nil, appErrors.ErrSurveyNotRequired
	}

	template, err := s.ResolveTemplate(ctx, workshop)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve survey template")
	}
	if template == nil {
		return nil, appErrors.ErrNoSurveyTemplate
	}

	questions, err := s.repo.ListQuestions(ctx, template.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey questions")
	}
	return &models.SurveyTemplateDetail{SurveyTemplate: *template, Questions: questions}, nil
}

// validatedSubmission is the outcome of an accepted answer set.
type validatedSubmission struct {
	answers []models.SurveyAnswer
	score   float64
	comment string
}

// validateAnswers checks the submission against the template questions in
// order. Validation is all-or-nothing: the first failure rejects the whole
// submission. It also derives the mean rating and the first free-text comment.
func validateAnswers(questions []models.SurveyQuestion, submitted []models.SubmittedAnswer) (*validatedSubmission, *appErrors.Error) {
	known := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	byQuestion := make(map[string]string, len(submitted))
	for _, answer := range submitted {
		if _, ok := known[answer.QuestionID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("answer references unknown question %s", answer.QuestionID))
		}
		byQuestion[answer.QuestionID] = answer.Value
	}

	out := &validatedSubmission{}
	var ratingSum, ratingCount int
	for _, question := range questions {
		value, present := byQuestion[question.ID]
		if !present || strings.TrimSpace(value) == "" {
			if question.Required {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d requires an answer", question.Position))
			}
			continue
		}
		trimmed := strings.TrimSpace(value)

		switch question.Type {
		case models.QuestionTypeRating:
			rating, err := strconv.Atoi(trimmed)
			if err != nil || rating < 1 || rating > 5 {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d expects a rating between 1 and 5", question.Position))
			}
			ratingSum += rating
			ratingCount++
		case models.QuestionTypeSingleChoice:
			// An empty option set disables the membership check.
			if len(question.Options) > 0 {
				match := false
				for _, option := range question.Options {
					if strings.EqualFold(option, trimmed) {
						match = true
						break
					}
				}
				if !match {
					return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d expects one of the configured options", question.Position))
				}
			}
		case models.QuestionTypeFreeText:
			if out.comment == "" {
				out.comment = trimmed
			}
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("question %d has unsupported type %s", question.Position, question.Type))
		}

		out.answers = append(out.answers, models.SurveyAnswer{
			QuestionID: question.ID,
			Position:   question.Position,
			Value:      trimmed,
		})
	}

	if ratingCount > 0 {
		out.score = float64(ratingSum) / float64(ratingCount)
	}
	return out, nil
}

// Submit validates and persists a survey submission. Guards run in order and
// each failure carries a distinct typed error.
func (s *SurveyService) Submit(ctx context.Context, workshopID, userID string, submitted []models.SubmittedAnswer, meta models.LoginRequest) (*models.SurveyResponse, error) {
	workshop, err := s.workshops.FindByID(ctx, workshopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}
	if workshop.Status != models.WorkshopStatusFinalized {
		return nil, appErrors.ErrNotFinalized
	}
	if !workshop.RequiresSurvey {
		return nil, appErrors.ErrSurveyNotRequired
	}

	enrollment, err := s.enrollments.FindByWorkshopAndUser(ctx, workshopID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotEnrolled
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.ErrNotEnrolled
	}

	responded, err := s.repo.HasResponse(ctx, workshopID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check previous response")
	}
	if responded {
		return nil, appErrors.ErrAlreadyResponded
	}

	template, err := s.ResolveTemplate(ctx, workshop)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve survey template")
	}
	if template == nil {
		return nil, appErrors.ErrNoSurveyTemplate
	}
	questions, err := s.repo.ListQuestions(ctx, template.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load survey questions")
	}

	validated, vErr := validateAnswers(questions, submitted)
	if vErr != nil {
		return nil, vErr
	}

	response := &models.SurveyResponse{
		TemplateID: template.ID,
		WorkshopID: workshopID,
		UserID:     userID,
	}
	record := &models.SatisfactionRecord{
		WorkshopID: workshopID,
		UserID:     userID,
		Score:      validated.score,
		Comment:    validated.comment,
	}
	if err := s.repo.CreateResponse(ctx, response, validated.answers, record); err != nil {
		if isUniqueViolation(err) {
			return nil, appErrors.ErrAlreadyResponded
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save survey response")
	}

	if s.metrics != nil {
		s.metrics.RecordSurveyResponse()
	}
	payload, _ := json.Marshal(map[string]interface{}{"workshop_id": workshopID, "template_id": template.ID})
	if s.effects != nil {
		s.effects.Audit(models.AuditLog{
			UserID:     &userID,
			Action:     models.AuditActionSurveySubmit,
			Resource:   "survey_responses",
			ResourceID: &response.ID,
			NewValues:  payload,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
	}
	return response, nil
}

// CreateTemplate defines a new survey template with its ordered questions.
func (s *SurveyService) CreateTemplate(ctx context.Context, req CreateSurveyTemplateRequest) (*models.SurveyTemplateDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid survey template payload")
	}
	if (req.WorkshopID == nil) == (req.CourseID == nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "template must be scoped to exactly one workshop or course")
	}

	template := &models.SurveyTemplate{
		Name:       req.Name,
		CourseID:   req.CourseID,
		WorkshopID: req.WorkshopID,
		Active:     req.Active,
	}
	questions := make([]models.SurveyQuestion, 0, len(req.Questions))
	for i, q := range req.Questions {
		questions = append(questions, models.SurveyQuestion{
			Type:     q.Type,
			Prompt:   q.Prompt,
			Position: i + 1,
			Required: q.Required,
			Options:  models.ChoiceOptions(q.Options),
		})
	}

	if err := s.repo.CreateTemplate(ctx, template, questions); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create survey template")
	}
	if template.Active {
		if err := s.repo.ActivateTemplate(ctx, template.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate survey template")
		}
	}
	return &models.SurveyTemplateDetail{SurveyTemplate: *template, Questions: questions}, nil
}

// ActivateTemplate makes a template the active one for its scope, deactivating
// its siblings.
func (s *SurveyService) ActivateTemplate(ctx context.Context, id string) error {
	if err := s.repo.ActivateTemplate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "survey template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate survey template")
	}
	return nil
}

// Results returns the satisfaction projection for a workshop.
func (s *SurveyService) Results(ctx context.Context, workshopID string) ([]models.SatisfactionRecord, error) {
	records, err := s.repo.ListSatisfactionByWorkshop(ctx, workshopID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list survey results")
	}
	return records, nil
}
