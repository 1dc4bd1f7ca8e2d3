package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Rows are never deleted; withdrawal flips the
// status and re-enrollment reactivates the same row.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVA"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELADA"
)

// Enrollment captures a user's claim on one seat in a workshop.
// At most one row exists per (workshop, user) pair.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	WorkshopID string           `db:"workshop_id" json:"workshop_id"`
	UserID     string           `db:"user_id" json:"user_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	Attended   bool             `db:"attended" json:"attended"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// EnrollmentDetail enriches Enrollment with user and workshop info.
type EnrollmentDetail struct {
	Enrollment
	UserName      string `db:"user_name" json:"user_name"`
	UserEmail     string `db:"user_email" json:"user_email"`
	WorkshopTitle string `db:"workshop_title" json:"workshop_title"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	WorkshopID string
	UserID     string
	Status     EnrollmentStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// EnrollmentOutcome describes how an enrollment attempt concluded.
type EnrollmentOutcome string

const (
	EnrollmentOutcomeCreated       EnrollmentOutcome = "CREATED"
	EnrollmentOutcomeReactivated   EnrollmentOutcome = "REACTIVATED"
	EnrollmentOutcomeAlreadyActive EnrollmentOutcome = "ALREADY_ACTIVE"
)

// EnrollmentResult reports the committed enrollment plus its outcome.
type EnrollmentResult struct {
	Enrollment Enrollment        `json:"enrollment"`
	Outcome    EnrollmentOutcome `json:"outcome"`
}
