package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
	"github.com/fundacion-aprender/portal-api/pkg/export"
)

type certificateRepository interface {
	FindByID(ctx context.Context, id string) (*models.Certificate, error)
	FindByWorkshopAndUser(ctx context.Context, workshopID, userID string) (*models.Certificate, error)
	Create(ctx context.Context, certificate *models.Certificate) error
	MarkApproved(ctx context.Context, id, artifactPath string, issuedAt time.Time) error
	MarkRevoked(ctx context.Context, id string) error
	ListByWorkshop(ctx context.Context, workshopID string) ([]models.CertificateDetail, error)
}

type enrollmentBatchReader interface {
	ListDetailsByIDs(ctx context.Context, ids []string) ([]models.EnrollmentDetail, error)
}

type identityResolver interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type satisfactionChecker interface {
	HasSatisfactionRecord(ctx context.Context, workshopID, userID string) (bool, error)
}

type artifactStore interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
	Exists(filename string) bool
	Path(filename string) (string, error)
}

type artifactRenderer interface {
	Render(data export.CertificateData) ([]byte, error)
}

// CertificateService runs the batch approve/revoke workflow and owns artifact
// lifecycle. Each batch item is an independent unit of work; a failed item is
// counted as skipped and never aborts the batch.
type CertificateService struct {
	repo         certificateRepository
	enrollments  enrollmentBatchReader
	workshops    workshopReader
	users        identityResolver
	satisfaction satisfactionChecker
	store        artifactStore
	renderer     artifactRenderer
	metrics      *MetricsService
	effects      effectsDispatcher
	organization string
	logger       *zap.Logger
}

// NewCertificateService creates an instance of CertificateService.
func NewCertificateService(repo certificateRepository, enrollments enrollmentBatchReader, workshops workshopReader, users identityResolver, satisfaction satisfactionChecker, store artifactStore, renderer artifactRenderer, metrics *MetricsService, effects effectsDispatcher, organization string, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateService{
		repo:         repo,
		enrollments:  enrollments,
		workshops:    workshops,
		users:        users,
		satisfaction: satisfaction,
		store:        store,
		renderer:     renderer,
		metrics:      metrics,
		effects:      effects,
		organization: organization,
		logger:       logger,
	}
}

// durationText renders a workshop duration for the certificate: minutes below
// one hour, one-decimal hours below a day, then days with leftover whole hours
// suppressed when negligible.
func durationText(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%d minutos", minutes)
	}
	hours := float64(minutes) / 60
	if hours < 24 {
		return fmt.Sprintf("%.1f horas", hours)
	}
	days := minutes / (24 * 60)
	leftover := float64(minutes%(24*60)) / 60
	if leftover <= 0.1 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %.0fh", days, leftover)
}

// issuedOn picks the printed certificate date: the workshop end date, falling
// back to the start date.
func issuedOn(workshop *models.Workshop) string {
	date := workshop.StartDate
	if workshop.EndDate != nil {
		date = *workshop.EndDate
	}
	return date.Format("02/01/2006")
}

// artifactFilename produces a fresh collision-checked name embedding the
// certificate id, so concurrent issuances can never collide and a reader can
// never observe a half-written file.
func (s *CertificateService) artifactFilename(certificateID string) string {
	for {
		suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		name := fmt.Sprintf("certificado_%s_%s.pdf", certificateID, suffix)
		if !s.store.Exists(name) {
			return name
		}
	}
}

// Approve issues certificates for the given enrollments and reports aggregate
// counts. Ineligible, unresolvable or failed items are counted as skipped.
func (s *CertificateService) Approve(ctx context.Context, enrollmentIDs []string, actorID string, meta models.LoginRequest) (*models.CertificateBatchResult, error) {
	details, err := s.enrollments.ListDetailsByIDs(ctx, enrollmentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	byID := make(map[string]models.EnrollmentDetail, len(details))
	for _, d := range details {
		byID[d.ID] = d
	}

	result := &models.CertificateBatchResult{}
	workshopCache := make(map[string]*models.Workshop)
	for _, enrollmentID := range enrollmentIDs {
		detail, ok := byID[enrollmentID]
		if !ok {
			result.Skipped++
			continue
		}
		if err := s.approveOne(ctx, detail, workshopCache, actorID, meta); err != nil {
			s.logger.Warn("certificate issuance skipped",
				zap.String("enrollment_id", enrollmentID),
				zap.Error(err))
			result.Skipped++
			continue
		}
		result.Approved++
	}
	return result, nil
}

func (s *CertificateService) approveOne(ctx context.Context, detail models.EnrollmentDetail, workshopCache map[string]*models.Workshop, actorID string, meta models.LoginRequest) error {
	workshop, ok := workshopCache[detail.WorkshopID]
	if !ok {
		loaded, err := s.workshops.FindByID(ctx, detail.WorkshopID)
		if err != nil {
			return fmt.Errorf("load workshop: %w", err)
		}
		workshop = loaded
		workshopCache[detail.WorkshopID] = workshop
	}

	user, err := s.users.FindByID(ctx, detail.UserID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}

	surveyCompleted := false
	if workshop.RequiresSurvey {
		surveyCompleted, err = s.satisfaction.HasSatisfactionRecord(ctx, detail.WorkshopID, detail.UserID)
		if err != nil {
			return fmt.Errorf("check survey completion: %w", err)
		}
	}
	if !CertificateEligible(EligibilityInput{Workshop: *workshop, Enrollment: detail.Enrollment, SurveyCompleted: surveyCompleted}) {
		return appErrors.ErrNotEligible
	}

	certificate, err := s.repo.FindByWorkshopAndUser(ctx, detail.WorkshopID, detail.UserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load certificate: %w", err)
		}
		certificate = &models.Certificate{WorkshopID: detail.WorkshopID, UserID: detail.UserID}
		// Persist once before rendering so the filename can embed a stable id.
		if err := s.repo.Create(ctx, certificate); err != nil {
			return fmt.Errorf("create certificate: %w", err)
		}
	}

	data := export.CertificateData{
		RecipientName: user.FullName,
		WorkshopTitle: workshop.Title,
		DurationText:  durationText(workshop.DurationMinutes),
		IssuedOn:      issuedOn(workshop),
		Organization:  s.organization,
	}
	artifact, err := s.renderer.Render(data)
	if err != nil {
		return fmt.Errorf("render certificate: %w", err)
	}

	if certificate.ArtifactPath != nil {
		if err := s.store.Delete(*certificate.ArtifactPath); err != nil {
			s.logger.Warn("failed to delete prior certificate artifact",
				zap.String("certificate_id", certificate.ID),
				zap.String("artifact", *certificate.ArtifactPath),
				zap.Error(err))
		}
	}

	filename := s.artifactFilename(certificate.ID)
	if _, err := s.store.Save(filename, artifact); err != nil {
		return fmt.Errorf("save certificate artifact: %w", err)
	}

	now := time.Now().UTC()
	if err := s.repo.MarkApproved(ctx, certificate.ID, filename, now); err != nil {
		return fmt.Errorf("approve certificate: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordCertificateIssued()
	}
	payload, _ := json.Marshal(map[string]interface{}{"workshop_id": detail.WorkshopID, "user_id": detail.UserID, "artifact": filename})
	if s.effects != nil {
		s.effects.Audit(models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionCertificateIssue,
			Resource:   "certificates",
			ResourceID: &certificate.ID,
			NewValues:  payload,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
		s.effects.Notify(user.FullName, user.Email,
			fmt.Sprintf("Certificado disponible: %s", workshop.Title),
			fmt.Sprintf("Hola %s, tu certificado del taller %q ya está disponible en el portal.", user.FullName, workshop.Title))
	}
	return nil
}

// Revoke withdraws certificates for the given enrollments. File deletion
// failures are logged and never fail the item.
func (s *CertificateService) Revoke(ctx context.Context, enrollmentIDs []string, actorID string, meta models.LoginRequest) (*models.CertificateBatchResult, error) {
	details, err := s.enrollments.ListDetailsByIDs(ctx, enrollmentIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollments")
	}
	byID := make(map[string]models.EnrollmentDetail, len(details))
	for _, d := range details {
		byID[d.ID] = d
	}

	result := &models.CertificateBatchResult{}
	for _, enrollmentID := range enrollmentIDs {
		detail, ok := byID[enrollmentID]
		if !ok {
			result.Skipped++
			continue
		}
		certificate, err := s.repo.FindByWorkshopAndUser(ctx, detail.WorkshopID, detail.UserID)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				s.logger.Warn("certificate revocation skipped", zap.String("enrollment_id", enrollmentID), zap.Error(err))
			}
			result.Skipped++
			continue
		}

		if certificate.ArtifactPath != nil {
			if err := s.store.Delete(*certificate.ArtifactPath); err != nil {
				s.logger.Warn("failed to delete certificate artifact",
					zap.String("certificate_id", certificate.ID),
					zap.String("artifact", *certificate.ArtifactPath),
					zap.Error(err))
			}
		}
		if err := s.repo.MarkRevoked(ctx, certificate.ID); err != nil {
			s.logger.Warn("certificate revocation skipped", zap.String("certificate_id", certificate.ID), zap.Error(err))
			result.Skipped++
			continue
		}
		result.Revoked++

		if s.metrics != nil {
			s.metrics.RecordCertificateRevoked()
		}
		if s.effects != nil {
			payload, _ := json.Marshal(map[string]interface{}{"workshop_id": detail.WorkshopID, "user_id": detail.UserID})
			s.effects.Audit(models.AuditLog{
				UserID:     &actorID,
				Action:     models.AuditActionCertificateRevoke,
				Resource:   "certificates",
				ResourceID: &certificate.ID,
				NewValues:  payload,
				IPAddress:  meta.IP,
				UserAgent:  meta.UserAgent,
			})
		}
	}
	return result, nil
}

// ResolveArtifact authorizes a download and returns the certificate together
// with the validated absolute path of its artifact. Only the owner or staff
// may fetch it; the stored reference must resolve inside the certificate
// directory.
func (s *CertificateService) ResolveArtifact(ctx context.Context, certificateID, requesterID string, role models.UserRole) (*models.Certificate, string, error) {
	certificate, err := s.repo.FindByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load certificate")
	}
	if certificate.UserID != requesterID && !role.Staff() {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "certificate belongs to another user")
	}
	if certificate.Status != models.CertificateStatusApproved || certificate.ArtifactPath == nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate has no issued artifact")
	}

	path, err := s.store.Path(*certificate.ArtifactPath)
	if err != nil {
		s.logger.Error("stored certificate artifact reference rejected",
			zap.String("certificate_id", certificate.ID),
			zap.String("artifact", *certificate.ArtifactPath),
			zap.Error(err))
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate artifact unavailable")
	}
	if !s.store.Exists(*certificate.ArtifactPath) {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "certificate artifact unavailable")
	}
	return certificate, path, nil
}

// ListByWorkshop returns certificates with recipient context for staff views.
func (s *CertificateService) ListByWorkshop(ctx context.Context, workshopID string) ([]models.CertificateDetail, error) {
	certificates, err := s.repo.ListByWorkshop(ctx, workshopID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list certificates")
	}
	return certificates, nil
}
