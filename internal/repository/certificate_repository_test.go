package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundacion-aprender/portal-api/internal/models"
)

func certificateColumns() []string {
	return []string{"id", "workshop_id", "user_id", "status", "artifact_path", "issued_at", "created_at", "updated_at"}
}

func TestCertificateFindByWorkshopAndUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	now := time.Now()
	artifact := "certificado_ct1_abc123.pdf"
	rows := sqlmock.NewRows(certificateColumns()).
		AddRow("ct1", "w1", "u1", string(models.CertificateStatusApproved), artifact, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE workshop_id = $1 AND user_id = $2")).
		WithArgs("w1", "u1").
		WillReturnRows(rows)

	certificate, err := repo.FindByWorkshopAndUser(context.Background(), "w1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "ct1", certificate.ID)
	assert.Equal(t, models.CertificateStatusApproved, certificate.Status)
	require.NotNil(t, certificate.ArtifactPath)
	assert.Equal(t, artifact, *certificate.ArtifactPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateCreateDefaultsToPending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec("INSERT INTO certificates").WillReturnResult(sqlmock.NewResult(0, 1))

	certificate := &models.Certificate{WorkshopID: "w1", UserID: "u1"}
	require.NoError(t, repo.Create(context.Background(), certificate))
	assert.NotEmpty(t, certificate.ID)
	assert.Equal(t, models.CertificateStatusPending, certificate.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateMarkApproved(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	issuedAt := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status = $2, artifact_path = $3, issued_at = $4, updated_at = $5 WHERE id = $1")).
		WithArgs("ct1", string(models.CertificateStatusApproved), "certificado_ct1_abc123.pdf", issuedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkApproved(context.Background(), "ct1", "certificado_ct1_abc123.pdf", issuedAt))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateMarkRevokedClearsArtifact(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE certificates SET status = $2, artifact_path = NULL, issued_at = NULL, updated_at = $3 WHERE id = $1")).
		WithArgs("ct1", string(models.CertificateStatusRejected), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkRevoked(context.Background(), "ct1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCertificateListByWorkshop(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCertificateRepository(db)

	now := time.Now()
	columns := append(certificateColumns(), "user_name", "user_email", "workshop_title")
	rows := sqlmock.NewRows(columns).
		AddRow("ct1", "w1", "u1", string(models.CertificateStatusApproved), "certificado_ct1_abc123.pdf", now, now, now,
			"Ana Pérez", "ana@example.com", "Huertas urbanas").
		AddRow("ct2", "w1", "u2", string(models.CertificateStatusPending), nil, nil, now, now,
			"Luis Gómez", "luis@example.com", "Huertas urbanas")
	mock.ExpectQuery(`WHERE ct\.workshop_id = \$1 ORDER BY ct\.created_at ASC`).
		WithArgs("w1").
		WillReturnRows(rows)

	certificates, err := repo.ListByWorkshop(context.Background(), "w1")
	require.NoError(t, err)
	require.Len(t, certificates, 2)
	assert.Equal(t, "Ana Pérez", certificates[0].UserName)
	assert.Nil(t, certificates[1].ArtifactPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}
