package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SurveyQuestionType enumerates supported question kinds.
type SurveyQuestionType string

const (
	QuestionTypeRating       SurveyQuestionType = "RATING_1_5"
	QuestionTypeFreeText     SurveyQuestionType = "TEXTO_LIBRE"
	QuestionTypeSingleChoice SurveyQuestionType = "OPCION_UNICA"
)

// SurveyTemplate defines a satisfaction survey. Templates are scoped either to
// a single workshop (override) or to a whole course; a workshop-scoped active
// template beats the course-level one.
type SurveyTemplate struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	CourseID   *string   `db:"course_id" json:"course_id,omitempty"`
	WorkshopID *string   `db:"workshop_id" json:"workshop_id,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChoiceOptions stores the configured answers for single-choice questions as JSONB.
type ChoiceOptions []string

// Value marshals options to JSON for persistence.
func (o ChoiceOptions) Value() (driver.Value, error) {
	if o == nil {
		o = ChoiceOptions{}
	}
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshal choice options: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the options slice.
func (o *ChoiceOptions) Scan(value interface{}) error {
	if value == nil {
		*o = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported choice options type %T", value)
	}
	if len(data) == 0 {
		*o = nil
		return nil
	}
	return json.Unmarshal(data, o)
}

// SurveyQuestion is one entry of a template, ordered by Position.
type SurveyQuestion struct {
	ID         string             `db:"id" json:"id"`
	TemplateID string             `db:"template_id" json:"template_id"`
	Type       SurveyQuestionType `db:"type" json:"type"`
	Prompt     string             `db:"prompt" json:"prompt"`
	Position   int                `db:"position" json:"position"`
	Required   bool               `db:"required" json:"required"`
	Options    ChoiceOptions      `db:"options" json:"options,omitempty"`
}

// SurveyTemplateDetail bundles a template with its ordered questions.
type SurveyTemplateDetail struct {
	SurveyTemplate
	Questions []SurveyQuestion `json:"questions"`
}

// SurveyResponse records one user's submission for one workshop.
// At most one row exists per (workshop, user) pair.
type SurveyResponse struct {
	ID         string    `db:"id" json:"id"`
	TemplateID string    `db:"template_id" json:"template_id"`
	WorkshopID string    `db:"workshop_id" json:"workshop_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SurveyAnswer is one answered question within a response.
type SurveyAnswer struct {
	ID         string `db:"id" json:"id"`
	ResponseID string `db:"response_id" json:"response_id"`
	QuestionID string `db:"question_id" json:"question_id"`
	Position   int    `db:"position" json:"position"`
	Value      string `db:"value" json:"value"`
}

// SatisfactionRecord is the denormalized completion signal consumed by the
// certificate eligibility gate: its presence for (workshop, user) means the
// survey was completed. Score is the mean of rating answers, kept only as a
// read optimization for reporting.
type SatisfactionRecord struct {
	ID         string    `db:"id" json:"id"`
	WorkshopID string    `db:"workshop_id" json:"workshop_id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Score      float64   `db:"score" json:"score"`
	Comment    string    `db:"comment" json:"comment"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// SubmittedAnswer is the inbound payload for one question.
type SubmittedAnswer struct {
	QuestionID string `json:"question_id" validate:"required"`
	Value      string `json:"value"`
}
