package models

import "time"

// WorkshopStatus represents the lifecycle of a workshop.
type WorkshopStatus string

// Possible workshop statuses.
const (
	WorkshopStatusOpen      WorkshopStatus = "ABIERTO"
	WorkshopStatusClosed    WorkshopStatus = "CERRADO"
	WorkshopStatusCancelled WorkshopStatus = "CANCELADO"
	WorkshopStatusFinalized WorkshopStatus = "FINALIZADO"
)

// WorkshopModality enumerates delivery modes.
type WorkshopModality string

const (
	ModalityInPerson WorkshopModality = "PRESENCIAL"
	ModalityVirtual  WorkshopModality = "VIRTUAL"
	ModalityHybrid   WorkshopModality = "HIBRIDO"
)

// Workshop is a scheduled training session with finite seats.
//
// AvailableSeats is persisted for fast reads but is a derived quantity; every
// reader recomputes it from the active enrollment count and every committed
// writer keeps the column equal to max_seats - count(active).
type Workshop struct {
	ID                string           `db:"id" json:"id"`
	CourseID          string           `db:"course_id" json:"course_id"`
	Title             string           `db:"title" json:"title"`
	Description       string           `db:"description" json:"description"`
	StartDate         time.Time        `db:"start_date" json:"start_date"`
	EndDate           *time.Time       `db:"end_date" json:"end_date,omitempty"`
	StartTime         string           `db:"start_time" json:"start_time"`
	DurationMinutes   int              `db:"duration_minutes" json:"duration_minutes"`
	Modality          WorkshopModality `db:"modality" json:"modality"`
	MaxSeats          int              `db:"max_seats" json:"max_seats"`
	AvailableSeats    int              `db:"available_seats" json:"available_seats"`
	Status            WorkshopStatus   `db:"status" json:"status"`
	AllowsCertificate bool             `db:"allows_certificate" json:"allows_certificate"`
	RequiresSurvey    bool             `db:"requires_survey" json:"requires_survey"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// WorkshopDetail enriches Workshop with course info.
type WorkshopDetail struct {
	Workshop
	CourseTitle string `db:"course_title" json:"course_title"`
}

// WorkshopFilter provides filters for listing workshops.
type WorkshopFilter struct {
	CourseID   string
	Status     WorkshopStatus
	Modality   WorkshopModality
	PublicOnly bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
