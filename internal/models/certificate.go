package models

import "time"

// CertificateStatus represents the approval state of a certificate.
type CertificateStatus string

const (
	CertificateStatusPending  CertificateStatus = "PENDIENTE"
	CertificateStatusApproved CertificateStatus = "APROBADO"
	CertificateStatusRejected CertificateStatus = "RECHAZADO"
)

// Certificate is an issued proof-of-completion artifact tied to one enrollment.
// At most one row exists per (workshop, user) pair; re-issuance replaces the
// artifact reference with a fresh file instead of overwriting in place.
type Certificate struct {
	ID           string            `db:"id" json:"id"`
	WorkshopID   string            `db:"workshop_id" json:"workshop_id"`
	UserID       string            `db:"user_id" json:"user_id"`
	Status       CertificateStatus `db:"status" json:"status"`
	ArtifactPath *string           `db:"artifact_path" json:"artifact_path,omitempty"`
	IssuedAt     *time.Time        `db:"issued_at" json:"issued_at,omitempty"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at" json:"updated_at"`
}

// CertificateDetail enriches Certificate with recipient and workshop info.
type CertificateDetail struct {
	Certificate
	UserName      string `db:"user_name" json:"user_name"`
	UserEmail     string `db:"user_email" json:"user_email"`
	WorkshopTitle string `db:"workshop_title" json:"workshop_title"`
}

// CertificateBatchResult aggregates counts for batch approve/revoke operations.
type CertificateBatchResult struct {
	Approved int `json:"approved,omitempty"`
	Revoked  int `json:"revoked,omitempty"`
	Skipped  int `json:"skipped"`
}
