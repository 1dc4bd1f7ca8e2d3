package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
)

type enrollmentRepository interface {
	BeginSerializable(ctx context.Context) (*sqlx.Tx, error)
	Begin(ctx context.Context) (*sqlx.Tx, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	FindByWorkshopAndUser(ctx context.Context, workshopID, userID string) (*models.Enrollment, error)
	FindByWorkshopAndUserTx(ctx context.Context, tx *sqlx.Tx, workshopID, userID string) (*models.Enrollment, error)
	CountActiveTx(ctx context.Context, tx *sqlx.Tx, workshopID string) (int, error)
	CreateTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	ReactivateTx(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus, now time.Time) error
	SetAttendance(ctx context.Context, id string, attended bool) error
}

type workshopSeatStore interface {
	FindByID(ctx context.Context, id string) (*models.Workshop, error)
	FindByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Workshop, error)
	SetAvailableSeatsTx(ctx context.Context, tx *sqlx.Tx, id string, available int) error
}

type seatLedger interface {
	AvailableSeats(ctx context.Context, workshop *models.Workshop) (int, error)
}

type effectsDispatcher interface {
	Audit(log models.AuditLog)
	Notify(toName, toEmail, subject, body string)
}

// EnrollmentService owns the seat-reservation state machine. Reservation runs
// under a serializable transaction so two concurrent requests can never both
// observe the last seat; every other mutation runs at default isolation.
type EnrollmentService struct {
	repo      enrollmentRepository
	workshops workshopSeatStore
	ledger    seatLedger
	metrics   *MetricsService
	effects   effectsDispatcher
	logger    *zap.Logger
}

// NewEnrollmentService creates an instance of EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, workshops workshopSeatStore, ledger seatLedger, metrics *MetricsService, effects effectsDispatcher, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, workshops: workshops, ledger: ledger, metrics: metrics, effects: effects, logger: logger}
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Enroll reserves a seat for the user. Re-submitting while already enrolled is
// an idempotent success reported as AlreadyActive, not an error.
func (s *EnrollmentService) Enroll(ctx context.Context, workshopID, userID string, meta models.LoginRequest) (*models.EnrollmentResult, error) {
	workshop, err := s.workshops.FindByID(ctx, workshopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}
	if workshop.Status != models.WorkshopStatusOpen {
		return nil, appErrors.ErrWorkshopNotOpen
	}
	if s.ledger != nil {
		available, err := s.ledger.AvailableSeats(ctx, workshop)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute available seats")
		}
		if available <= 0 {
			if existing, err := s.repo.FindByWorkshopAndUser(ctx, workshopID, userID); err == nil && existing.Status == models.EnrollmentStatusActive {
				return s.report(&models.EnrollmentResult{Enrollment: *existing, Outcome: models.EnrollmentOutcomeAlreadyActive}), nil
			}
			return nil, appErrors.ErrWorkshopFull
		}
	}

	result, err := s.reserve(ctx, workshopID, userID)
	if err != nil {
		if isSerializationFailure(err) {
			return nil, appErrors.Clone(appErrors.ErrTryAgain, "")
		}
		if isUniqueViolation(err) {
			// Lost a concurrent insert race for the same pair; the winning row
			// makes this request an idempotent success.
			existing, findErr := s.repo.FindByWorkshopAndUser(ctx, workshopID, userID)
			if findErr == nil {
				return s.report(&models.EnrollmentResult{Enrollment: *existing, Outcome: models.EnrollmentOutcomeAlreadyActive}), nil
			}
			return nil, appErrors.Clone(appErrors.ErrTryAgain, "")
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		s.logger.Error("enrollment transaction failed", zap.String("workshop_id", workshopID), zap.String("user_id", userID), zap.Error(err))
		return nil, appErrors.Clone(appErrors.ErrTryAgain, "")
	}

	payload, _ := json.Marshal(map[string]interface{}{"workshop_id": workshopID, "outcome": result.Outcome})
	s.audit(models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionEnroll,
		Resource:   "enrollments",
		ResourceID: &result.Enrollment.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return s.report(result), nil
}

// reserve runs the serializable reservation. Any storage error aborts the
// whole transaction; no partial state survives a failed attempt.
func (s *EnrollmentService) reserve(ctx context.Context, workshopID, userID string) (*models.EnrollmentResult, error) {
	tx, err := s.repo.BeginSerializable(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback() //nolint:errcheck

	workshop, err := s.workshops.FindByIDTx(ctx, tx, workshopID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, err
	}
	if workshop.Status != models.WorkshopStatusOpen {
		return nil, appErrors.ErrWorkshopNotOpen
	}

	existing, err := s.repo.FindByWorkshopAndUserTx(ctx, tx, workshopID, userID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing != nil && existing.Status == models.EnrollmentStatusActive {
		return &models.EnrollmentResult{Enrollment: *existing, Outcome: models.EnrollmentOutcomeAlreadyActive}, nil
	}

	activeCount, err := s.repo.CountActiveTx(ctx, tx, workshopID)
	if err != nil {
		return nil, err
	}
	available := workshop.MaxSeats - activeCount
	if available <= 0 {
		return nil, appErrors.ErrWorkshopFull
	}

	now := time.Now().UTC()
	result := &models.EnrollmentResult{}
	if existing != nil {
		if err := s.repo.ReactivateTx(ctx, tx, existing.ID, now); err != nil {
			return nil, err
		}
		reactivated := *existing
		reactivated.Status = models.EnrollmentStatusActive
		reactivated.Attended = false
		reactivated.CreatedAt = now
		reactivated.UpdatedAt = now
		result.Enrollment = reactivated
		result.Outcome = models.EnrollmentOutcomeReactivated
	} else {
		enrollment := &models.Enrollment{WorkshopID: workshopID, UserID: userID}
		if err := s.repo.CreateTx(ctx, tx, enrollment); err != nil {
			return nil, err
		}
		result.Enrollment = *enrollment
		result.Outcome = models.EnrollmentOutcomeCreated
	}

	// The count was just verified under serializable isolation, so a local
	// decrement is safe here and only here.
	if err := s.workshops.SetAvailableSeatsTx(ctx, tx, workshopID, available-1); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// Withdraw cancels the user's active enrollment and re-persists the seat
// counter from a fresh count, never assuming the column was consistent.
func (s *EnrollmentService) Withdraw(ctx context.Context, workshopID, userID, actorID string, meta models.LoginRequest) error {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start withdrawal")
	}
	defer tx.Rollback() //nolint:errcheck

	enrollment, err := s.repo.FindByWorkshopAndUserTx(ctx, tx, workshopID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotEnrolled
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return appErrors.ErrNotEnrolled
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatusTx(ctx, tx, enrollment.ID, models.EnrollmentStatusCancelled, now); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel enrollment")
	}

	workshop, err := s.workshops.FindByIDTx(ctx, tx, workshopID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}
	activeCount, err := s.repo.CountActiveTx(ctx, tx, workshopID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if err := s.workshops.SetAvailableSeatsTx(ctx, tx, workshopID, workshop.MaxSeats-activeCount); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update seats")
	}

	if err := tx.Commit(); err != nil {
		return appErrors.Clone(appErrors.ErrTryAgain, "")
	}

	payload, _ := json.Marshal(map[string]interface{}{"workshop_id": workshopID, "user_id": userID})
	s.audit(models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionWithdraw,
		Resource:   "enrollments",
		ResourceID: &enrollment.ID,
		NewValues:  payload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})
	return nil
}

// SetAttendance records the staff-set attendance flag on an enrollment.
func (s *EnrollmentService) SetAttendance(ctx context.Context, enrollmentID string, attended bool, actorID string, meta models.LoginRequest) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.ErrNotEnrolled
	}

	if err := s.repo.SetAttendance(ctx, enrollmentID, attended); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"attended": enrollment.Attended})
	newPayload, _ := json.Marshal(map[string]interface{}{"attended": attended})
	s.audit(models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionAttendanceUpdate,
		Resource:   "enrollments",
		ResourceID: &enrollment.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	})

	enrollment.Attended = attended
	return enrollment, nil
}

// List returns paginated enrollments with user and workshop context.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns an enrollment with user and workshop context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

func (s *EnrollmentService) report(result *models.EnrollmentResult) *models.EnrollmentResult {
	if s.metrics != nil {
		s.metrics.RecordEnrollmentOutcome(string(result.Outcome))
	}
	return result
}

func (s *EnrollmentService) audit(log models.AuditLog) {
	if s.effects == nil {
		return
	}
	s.effects.Audit(log)
}
