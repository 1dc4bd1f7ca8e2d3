package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fundacion-aprender/portal-api/internal/models"
)

// SurveyRepository handles persistence of survey templates, responses and the
// satisfaction projection.
type SurveyRepository struct {
	db *sqlx.DB
}

// NewSurveyRepository constructs the repository.
func NewSurveyRepository(db *sqlx.DB) *SurveyRepository {
	return &SurveyRepository{db: db}
}

// FindActiveTemplateForWorkshop returns the newest active template scoped to the workshop.
func (r *SurveyRepository) FindActiveTemplateForWorkshop(ctx context.Context, workshopID string) (*models.SurveyTemplate, error) {
	const query = `SELECT id, name, course_id, workshop_id, active, created_at FROM survey_templates
        WHERE workshop_id = $1 AND active = TRUE ORDER BY created_at DESC LIMIT 1`
	var template models.SurveyTemplate
	if err := r.db.GetContext(ctx, &template, query, workshopID); err != nil {
		return nil, err
	}
	return &template, nil
}

// FindActiveTemplateForCourse returns the newest active course-level template.
func (r *SurveyRepository) FindActiveTemplateForCourse(ctx context.Context, courseID string) (*models.SurveyTemplate, error) {
	const query = `SELECT id, name, course_id, workshop_id, active, created_at FROM survey_templates
        WHERE course_id = $1 AND workshop_id IS NULL AND active = TRUE ORDER BY created_at DESC LIMIT 1`
	var template models.SurveyTemplate
	if err := r.db.GetContext(ctx, &template, query, courseID); err != nil {
		return nil, err
	}
	return &template, nil
}

// ListQuestions returns a template's questions in display order.
func (r *SurveyRepository) ListQuestions(ctx context.Context, templateID string) ([]models.SurveyQuestion, error) {
	const query = `SELECT id, template_id, type, prompt, position, required, options FROM survey_questions
        WHERE template_id = $1 ORDER BY position ASC`
	var questions []models.SurveyQuestion
	if err := r.db.SelectContext(ctx, &questions, query, templateID); err != nil {
		return nil, fmt.Errorf("list survey questions: %w", err)
	}
	return questions, nil
}

// CreateTemplate persists a template and its questions in one transaction.
func (r *SurveyRepository) CreateTemplate(ctx context.Context, template *models.SurveyTemplate, questions []models.SurveyQuestion) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	if template.CreatedAt.IsZero() {
		template.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const templateQuery = `INSERT INTO survey_templates (id, name, course_id, workshop_id, active, created_at)
        VALUES (:id, :name, :course_id, :workshop_id, :active, :created_at)`
	if _, err := tx.NamedExecContext(ctx, templateQuery, template); err != nil {
		return fmt.Errorf("create survey template: %w", err)
	}

	const questionQuery = `INSERT INTO survey_questions (id, template_id, type, prompt, position, required, options)
        VALUES (:id, :template_id, :type, :prompt, :position, :required, :options)`
	for i := range questions {
		q := &questions[i]
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		q.TemplateID = template.ID
		if _, err := tx.NamedExecContext(ctx, questionQuery, q); err != nil {
			return fmt.Errorf("create survey question: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit template: %w", err)
	}
	return nil
}

// ActivateTemplate marks a template active and deactivates its scope siblings
// (same workshop, or same course for course-level templates) atomically.
func (r *SurveyRepository) ActivateTemplate(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const findQuery = `SELECT id, name, course_id, workshop_id, active, created_at FROM survey_templates WHERE id = $1`
	var template models.SurveyTemplate
	if err := tx.GetContext(ctx, &template, findQuery, id); err != nil {
		return err
	}

	if template.WorkshopID != nil {
		const query = `UPDATE survey_templates SET active = FALSE WHERE workshop_id = $1 AND id <> $2`
		if _, err := tx.ExecContext(ctx, query, *template.WorkshopID, id); err != nil {
			return fmt.Errorf("deactivate sibling templates: %w", err)
		}
	} else if template.CourseID != nil {
		const query = `UPDATE survey_templates SET active = FALSE WHERE course_id = $1 AND workshop_id IS NULL AND id <> $2`
		if _, err := tx.ExecContext(ctx, query, *template.CourseID, id); err != nil {
			return fmt.Errorf("deactivate sibling templates: %w", err)
		}
	}

	const activateQuery = `UPDATE survey_templates SET active = TRUE WHERE id = $1`
	if _, err := tx.ExecContext(ctx, activateQuery, id); err != nil {
		return fmt.Errorf("activate template: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit activation: %w", err)
	}
	return nil
}

// HasResponse reports whether the user already answered for the workshop.
func (r *SurveyRepository) HasResponse(ctx context.Context, workshopID, userID string) (bool, error) {
	const query = `SELECT 1 FROM survey_responses WHERE workshop_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, workshopID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check survey response: %w", err)
	}
	return true, nil
}

// HasSatisfactionRecord reports whether the completion signal exists for the pair.
func (r *SurveyRepository) HasSatisfactionRecord(ctx context.Context, workshopID, userID string) (bool, error) {
	const query = `SELECT 1 FROM satisfaction_records WHERE workshop_id = $1 AND user_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, workshopID, userID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check satisfaction record: %w", err)
	}
	return true, nil
}

// CreateResponse persists the structured response, its answers and the derived
// satisfaction record in one transaction; a unique-key loss on the response row
// aborts the whole write.
func (r *SurveyRepository) CreateResponse(ctx context.Context, response *models.SurveyResponse, answers []models.SurveyAnswer, record *models.SatisfactionRecord) error {
	if response.ID == "" {
		response.ID = uuid.NewString()
	}
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const responseQuery = `INSERT INTO survey_responses (id, template_id, workshop_id, user_id, created_at)
        VALUES (:id, :template_id, :workshop_id, :user_id, :created_at)`
	if _, err := tx.NamedExecContext(ctx, responseQuery, response); err != nil {
		return fmt.Errorf("create survey response: %w", err)
	}

	const answerQuery = `INSERT INTO survey_answers (id, response_id, question_id, position, value)
        VALUES (:id, :response_id, :question_id, :position, :value)`
	for i := range answers {
		a := &answers[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.ResponseID = response.ID
		if _, err := tx.NamedExecContext(ctx, answerQuery, a); err != nil {
			return fmt.Errorf("create survey answer: %w", err)
		}
	}

	if record != nil {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = response.CreatedAt
		}
		const recordQuery = `INSERT INTO satisfaction_records (id, workshop_id, user_id, score, comment, created_at)
            VALUES (:id, :workshop_id, :user_id, :score, :comment, :created_at)`
		if _, err := tx.NamedExecContext(ctx, recordQuery, record); err != nil {
			return fmt.Errorf("create satisfaction record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit survey response: %w", err)
	}
	return nil
}

// ListSatisfactionByWorkshop returns the satisfaction projection for reporting.
func (r *SurveyRepository) ListSatisfactionByWorkshop(ctx context.Context, workshopID string) ([]models.SatisfactionRecord, error) {
	const query = `SELECT id, workshop_id, user_id, score, comment, created_at FROM satisfaction_records
        WHERE workshop_id = $1 ORDER BY created_at ASC`
	var records []models.SatisfactionRecord
	if err := r.db.SelectContext(ctx, &records, query, workshopID); err != nil {
		return nil, fmt.Errorf("list satisfaction records: %w", err)
	}
	return records, nil
}
