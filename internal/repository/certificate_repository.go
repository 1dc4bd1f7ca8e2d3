package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fundacion-aprender/portal-api/internal/models"
)

// CertificateRepository handles persistence of certificates.
type CertificateRepository struct {
	db *sqlx.DB
}

// NewCertificateRepository constructs the repository.
func NewCertificateRepository(db *sqlx.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// FindByID returns a certificate by identifier.
func (r *CertificateRepository) FindByID(ctx context.Context, id string) (*models.Certificate, error) {
	const query = `SELECT id, workshop_id, user_id, status, artifact_path, issued_at, created_at, updated_at FROM certificates WHERE id = $1`
	var certificate models.Certificate
	if err := r.db.GetContext(ctx, &certificate, query, id); err != nil {
		return nil, err
	}
	return &certificate, nil
}

// FindByWorkshopAndUser returns the single certificate row for the pair, if any.
func (r *CertificateRepository) FindByWorkshopAndUser(ctx context.Context, workshopID, userID string) (*models.Certificate, error) {
	const query = `SELECT id, workshop_id, user_id, status, artifact_path, issued_at, created_at, updated_at FROM certificates
        WHERE workshop_id = $1 AND user_id = $2`
	var certificate models.Certificate
	if err := r.db.GetContext(ctx, &certificate, query, workshopID, userID); err != nil {
		return nil, err
	}
	return &certificate, nil
}

// Create persists a new pending certificate; the insert happens before artifact
// generation so the filename can embed a stable identifier.
func (r *CertificateRepository) Create(ctx context.Context, certificate *models.Certificate) error {
	if certificate.ID == "" {
		certificate.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if certificate.CreatedAt.IsZero() {
		certificate.CreatedAt = now
	}
	certificate.UpdatedAt = now
	if certificate.Status == "" {
		certificate.Status = models.CertificateStatusPending
	}
	const query = `INSERT INTO certificates (id, workshop_id, user_id, status, artifact_path, issued_at, created_at, updated_at)
        VALUES (:id, :workshop_id, :user_id, :status, :artifact_path, :issued_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, certificate); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

// MarkApproved records the approval with the fresh artifact reference.
func (r *CertificateRepository) MarkApproved(ctx context.Context, id, artifactPath string, issuedAt time.Time) error {
	const query = `UPDATE certificates SET status = $2, artifact_path = $3, issued_at = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.CertificateStatusApproved, artifactPath, issuedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("approve certificate: %w", err)
	}
	return nil
}

// MarkRevoked clears the issuance state and artifact reference.
func (r *CertificateRepository) MarkRevoked(ctx context.Context, id string) error {
	const query = `UPDATE certificates SET status = $2, artifact_path = NULL, issued_at = NULL, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.CertificateStatusRejected, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke certificate: %w", err)
	}
	return nil
}

// ListByWorkshop returns certificates with recipient info for a workshop.
func (r *CertificateRepository) ListByWorkshop(ctx context.Context, workshopID string) ([]models.CertificateDetail, error) {
	const query = `SELECT ct.id, ct.workshop_id, ct.user_id, ct.status, ct.artifact_path, ct.issued_at, ct.created_at, ct.updated_at,
        u.full_name AS user_name, u.email AS user_email, w.title AS workshop_title
        FROM certificates ct
        LEFT JOIN users u ON u.id = ct.user_id
        LEFT JOIN workshops w ON w.id = ct.workshop_id
        WHERE ct.workshop_id = $1 ORDER BY ct.created_at ASC`
	var certificates []models.CertificateDetail
	if err := r.db.SelectContext(ctx, &certificates, query, workshopID); err != nil {
		return nil, fmt.Errorf("list certificates: %w", err)
	}
	return certificates, nil
}
