package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
)

type mockSurveyRepo struct {
	workshopTemplates map[string]models.SurveyTemplate
	courseTemplates   map[string]models.SurveyTemplate
	questions         map[string][]models.SurveyQuestion
	responded         map[string]bool
	createdTemplate   *models.SurveyTemplate
	activated         []string
	savedResponse     *models.SurveyResponse
	savedAnswers      []models.SurveyAnswer
	savedRecord       *models.SatisfactionRecord
	createResponseErr error
}

func (m *mockSurveyRepo) FindActiveTemplateForWorkshop(ctx context.Context, workshopID string) (*models.SurveyTemplate, error) {
	if tpl, ok := m.workshopTemplates[workshopID]; ok {
		return &tpl, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSurveyRepo) FindActiveTemplateForCourse(ctx context.Context, courseID string) (*models.SurveyTemplate, error) {
	if tpl, ok := m.courseTemplates[courseID]; ok {
		return &tpl, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSurveyRepo) ListQuestions(ctx context.Context, templateID string) ([]models.SurveyQuestion, error) {
	return m.questions[templateID], nil
}

func (m *mockSurveyRepo) CreateTemplate(ctx context.Context, template *models.SurveyTemplate, questions []models.SurveyQuestion) error {
	template.ID = "tpl-new"
	m.createdTemplate = template
	return nil
}

func (m *mockSurveyRepo) ActivateTemplate(ctx context.Context, id string) error {
	m.activated = append(m.activated, id)
	return nil
}

func (m *mockSurveyRepo) HasResponse(ctx context.Context, workshopID, userID string) (bool, error) {
	return m.responded[workshopID+"|"+userID], nil
}

func (m *mockSurveyRepo) CreateResponse(ctx context.Context, response *models.SurveyResponse, answers []models.SurveyAnswer, record *models.SatisfactionRecord) error {
	if m.createResponseErr != nil {
		return m.createResponseErr
	}
	response.ID = "resp-new"
	m.savedResponse = response
	m.savedAnswers = answers
	m.savedRecord = record
	return nil
}

func (m *mockSurveyRepo) ListSatisfactionByWorkshop(ctx context.Context, workshopID string) ([]models.SatisfactionRecord, error) {
	return nil, nil
}

type mockWorkshopReader struct {
	workshops map[string]models.Workshop
}

func (m *mockWorkshopReader) FindByID(ctx context.Context, id string) (*models.Workshop, error) {
	if w, ok := m.workshops[id]; ok {
		return &w, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollmentReader struct {
	rows map[string]models.Enrollment
}

func (m *mockEnrollmentReader) FindByWorkshopAndUser(ctx context.Context, workshopID, userID string) (*models.Enrollment, error) {
	if e, ok := m.rows[workshopID+"|"+userID]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func surveyQuestions() []models.SurveyQuestion {
	return []models.SurveyQuestion{
		{ID: "q1", TemplateID: "tpl-1", Type: models.QuestionTypeRating, Prompt: "¿Qué tan útil fue el taller?", Position: 1, Required: true},
		{ID: "q2", TemplateID: "tpl-1", Type: models.QuestionTypeRating, Prompt: "¿Recomendarías el taller?", Position: 2, Required: true},
		{ID: "q3", TemplateID: "tpl-1", Type: models.QuestionTypeSingleChoice, Prompt: "¿Cómo te enteraste?", Position: 3, Options: models.ChoiceOptions{"Redes", "Email", "Otro"}},
		{ID: "q4", TemplateID: "tpl-1", Type: models.QuestionTypeFreeText, Prompt: "Comentarios", Position: 4},
	}
}

func finalizedSurveyWorkshop() models.Workshop {
	return models.Workshop{ID: "w1", CourseID: "c1", Status: models.WorkshopStatusFinalized, RequiresSurvey: true}
}

func newSurveyService(repo *mockSurveyRepo, workshops *mockWorkshopReader, enrollments *mockEnrollmentReader, effects *mockEffects) *SurveyService {
	return NewSurveyService(repo, workshops, enrollments, validator.New(), nil, effects, zap.NewNop())
}

func TestSurveyServiceSubmit(t *testing.T) {
	repo := &mockSurveyRepo{
		workshopTemplates: map[string]models.SurveyTemplate{"w1": {ID: "tpl-1", Name: "Default"}},
		questions:         map[string][]models.SurveyQuestion{"tpl-1": surveyQuestions()},
	}
	workshops := &mockWorkshopReader{workshops: map[string]models.Workshop{"w1": finalizedSurveyWorkshop()}}
	enrollments := &mockEnrollmentReader{rows: map[string]models.Enrollment{
		"w1|u1": {ID: "e1", Status: models.EnrollmentStatusActive, Attended: true},
	}}
	effects := &mockEffects{}
	svc := newSurveyService(repo, workshops, enrollments, effects)

	response, err := svc.Submit(context.Background(), "w1", "u1", []models.SubmittedAnswer{
		{QuestionID: "q1", Value: "5"},
		{QuestionID: "q2", Value: "4"},
		{QuestionID: "q3", Value: "redes"},
		{QuestionID: "q4", Value: "  Muy buen taller  "},
	}, models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "resp-new", response.ID)
	require.NotNil(t, repo.savedRecord)
	assert.InDelta(t, 4.5, repo.savedRecord.Score, 0.001)
	assert.Equal(t, "Muy buen taller", repo.savedRecord.Comment)
	assert.Len(t, repo.savedAnswers, 4)
	assert.Len(t, effects.audits, 1)
	assert.Equal(t, models.AuditActionSurveySubmit, effects.audits[0].Action)
}

func TestSurveyServiceSubmitGuards(t *testing.T) {
	openWorkshop := finalizedSurveyWorkshop()
	openWorkshop.Status = models.WorkshopStatusOpen
	noSurvey := finalizedSurveyWorkshop()
	noSurvey.RequiresSurvey = false

	tests := []struct {
		name        string
		workshopID  string
		workshops   map[string]models.Workshop
		enrollments map[string]models.Enrollment
		responded   map[string]bool
		wantCode    string
	}{
		{
			name:       "workshop missing",
			workshopID: "missing",
			workshops:  map[string]models.Workshop{"w1": finalizedSurveyWorkshop()},
			wantCode:   appErrors.ErrNotFound.Code,
		},
		{
			name:       "workshop not finalized",
			workshopID: "w1",
			workshops:  map[string]models.Workshop{"w1": openWorkshop},
			wantCode:   appErrors.ErrNotFinalized.Code,
		},
		{
			name:       "survey not required",
			workshopID: "w1",
			workshops:  map[string]models.Workshop{"w1": noSurvey},
			wantCode:   appErrors.ErrSurveyNotRequired.Code,
		},
		{
			name:       "not enrolled",
			workshopID: "w1",
			workshops:  map[string]models.Workshop{"w1": finalizedSurveyWorkshop()},
			wantCode:   appErrors.ErrNotEnrolled.Code,
		},
		{
			name:        "enrollment cancelled",
			workshopID:  "w1",
			workshops:   map[string]models.Workshop{"w1": finalizedSurveyWorkshop()},
			enrollments: map[string]models.Enrollment{"w1|u1": {ID: "e1", Status: models.EnrollmentStatusCancelled}},
			wantCode:    appErrors.ErrNotEnrolled.Code,
		},
		{
			name:        "already responded",
			workshopID:  "w1",
			workshops:   map[string]models.Workshop{"w1": finalizedSurveyWorkshop()},
			enrollments: map[string]models.Enrollment{"w1|u1": {ID: "e1", Status: models.EnrollmentStatusActive}},
			responded:   map[string]bool{"w1|u1": true},
			wantCode:    appErrors.ErrAlreadyResponded.Code,
		},
		{
			name:        "no template",
			workshopID:  "w1",
			workshops:   map[string]models.Workshop{"w1": finalizedSurveyWorkshop()},
			enrollments: map[string]models.Enrollment{"w1|u1": {ID: "e1", Status: models.EnrollmentStatusActive}},
			wantCode:    appErrors.ErrNoSurveyTemplate.Code,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &mockSurveyRepo{responded: tc.responded}
			workshops := &mockWorkshopReader{workshops: tc.workshops}
			enrollments := &mockEnrollmentReader{rows: tc.enrollments}
			svc := newSurveyService(repo, workshops, enrollments, &mockEffects{})

			_, err := svc.Submit(context.Background(), tc.workshopID, "u1", nil, models.LoginRequest{})
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, appErrors.FromError(err).Code)
		})
	}
}

func TestValidateAnswers(t *testing.T) {
	questions := surveyQuestions()

	tests := []struct {
		name    string
		answers []models.SubmittedAnswer
		wantErr string
	}{
		{
			name: "unknown question rejected",
			answers: []models.SubmittedAnswer{
				{QuestionID: "q1", Value: "5"},
				{QuestionID: "q2", Value: "5"},
				{QuestionID: "bogus", Value: "x"},
			},
			wantErr: "unknown question",
		},
		{
			name: "required question missing",
			answers: []models.SubmittedAnswer{
				{QuestionID: "q1", Value: "5"},
			},
			wantErr: "requires an answer",
		},
		{
			name: "rating out of range",
			answers: []models.SubmittedAnswer{
				{QuestionID: "q1", Value: "6"},
				{QuestionID: "q2", Value: "3"},
			},
			wantErr: "rating between 1 and 5",
		},
		{
			name: "rating not numeric",
			answers: []models.SubmittedAnswer{
				{QuestionID: "q1", Value: "muy bueno"},
				{QuestionID: "q2", Value: "3"},
			},
			wantErr: "rating between 1 and 5",
		},
		{
			name: "choice outside option set",
			answers: []models.SubmittedAnswer{
				{QuestionID: "q1", Value: "4"},
				{QuestionID: "q2", Value: "4"},
				{QuestionID: "q3", Value: "Radio"},
			},
			wantErr: "configured options",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validateAnswers(questions, tc.answers)
			require.NotNil(t, err)
			assert.Contains(t, err.Message, tc.wantErr)
		})
	}
}

func TestValidateAnswersChoiceIsCaseInsensitive(t *testing.T) {
	out, err := validateAnswers(surveyQuestions(), []models.SubmittedAnswer{
		{QuestionID: "q1", Value: "3"},
		{QuestionID: "q2", Value: "2"},
		{QuestionID: "q3", Value: "EMAIL"},
	})
	require.Nil(t, err)
	assert.InDelta(t, 2.5, out.score, 0.001)
	assert.Empty(t, out.comment)
}

func TestValidateAnswersEmptyOptionSetSkipsMembership(t *testing.T) {
	questions := []models.SurveyQuestion{
		{ID: "q1", Type: models.QuestionTypeSingleChoice, Prompt: "Sede", Position: 1, Required: true},
	}
	out, err := validateAnswers(questions, []models.SubmittedAnswer{{QuestionID: "q1", Value: "Norte"}})
	require.Nil(t, err)
	assert.Len(t, out.answers, 1)
	assert.Zero(t, out.score)
}

func TestSurveyServiceResolveTemplatePrefersWorkshopScope(t *testing.T) {
	repo := &mockSurveyRepo{
		workshopTemplates: map[string]models.SurveyTemplate{"w1": {ID: "tpl-w", Name: "Override"}},
		courseTemplates:   map[string]models.SurveyTemplate{"c1": {ID: "tpl-c", Name: "Course default"}},
	}
	svc := newSurveyService(repo, &mockWorkshopReader{}, &mockEnrollmentReader{}, &mockEffects{})

	workshop := finalizedSurveyWorkshop()
	template, err := svc.ResolveTemplate(context.Background(), &workshop)
	require.NoError(t, err)
	assert.Equal(t, "tpl-w", template.ID)
}

func TestSurveyServiceResolveTemplateFallsBackToCourse(t *testing.T) {
	repo := &mockSurveyRepo{
		courseTemplates: map[string]models.SurveyTemplate{"c1": {ID: "tpl-c", Name: "Course default"}},
	}
	svc := newSurveyService(repo, &mockWorkshopReader{}, &mockEnrollmentReader{}, &mockEffects{})

	workshop := finalizedSurveyWorkshop()
	template, err := svc.ResolveTemplate(context.Background(), &workshop)
	require.NoError(t, err)
	assert.Equal(t, "tpl-c", template.ID)
}

func TestSurveyServiceResolveTemplateNone(t *testing.T) {
	svc := newSurveyService(&mockSurveyRepo{}, &mockWorkshopReader{}, &mockEnrollmentReader{}, &mockEffects{})

	workshop := finalizedSurveyWorkshop()
	template, err := svc.ResolveTemplate(context.Background(), &workshop)
	require.NoError(t, err)
	assert.Nil(t, template)
}

func TestSurveyServiceCreateTemplateRequiresSingleScope(t *testing.T) {
	svc := newSurveyService(&mockSurveyRepo{}, &mockWorkshopReader{}, &mockEnrollmentReader{}, &mockEffects{})
	workshopID := "w1"
	courseID := "c1"

	question := CreateSurveyQuestionRequest{Type: models.QuestionTypeRating, Prompt: "¿Qué tal?", Required: true}

	_, err := svc.CreateTemplate(context.Background(), CreateSurveyTemplateRequest{
		Name:      "Sin alcance",
		Questions: []CreateSurveyQuestionRequest{question},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateTemplate(context.Background(), CreateSurveyTemplateRequest{
		Name:       "Doble alcance",
		WorkshopID: &workshopID,
		CourseID:   &courseID,
		Questions:  []CreateSurveyQuestionRequest{question},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSurveyServiceCreateTemplateActivates(t *testing.T) {
	repo := &mockSurveyRepo{}
	svc := newSurveyService(repo, &mockWorkshopReader{}, &mockEnrollmentReader{}, &mockEffects{})
	workshopID := "w1"

	detail, err := svc.CreateTemplate(context.Background(), CreateSurveyTemplateRequest{
		Name:       "Encuesta general",
		WorkshopID: &workshopID,
		Active:     true,
		Questions: []CreateSurveyQuestionRequest{
			{Type: models.QuestionTypeRating, Prompt: "¿Qué tal?", Required: true},
			{Type: models.QuestionTypeFreeText, Prompt: "Comentarios"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "tpl-new", detail.ID)
	assert.Equal(t, []string{"tpl-new"}, repo.activated)
	require.Len(t, detail.Questions, 2)
	assert.Equal(t, 1, detail.Questions[0].Position)
	assert.Equal(t, 2, detail.Questions[1].Position)
}
