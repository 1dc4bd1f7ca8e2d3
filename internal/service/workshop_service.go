package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
)

type workshopRepository interface {
	List(ctx context.Context, filter models.WorkshopFilter) ([]models.WorkshopDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Workshop, error)
	FindDetailByID(ctx context.Context, id string) (*models.WorkshopDetail, error)
	Create(ctx context.Context, workshop *models.Workshop) error
	UpdateStatus(ctx context.Context, id string, status models.WorkshopStatus) error
	UpdateMaxSeats(ctx context.Context, id string, maxSeats int) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateWorkshopRequest is the staff payload for scheduling a workshop.
type CreateWorkshopRequest struct {
	CourseID          string                  `json:"course_id" validate:"required"`
	Title             string                  `json:"title" validate:"required"`
	Description       string                  `json:"description"`
	StartDate         time.Time               `json:"start_date" validate:"required"`
	EndDate           *time.Time              `json:"end_date"`
	StartTime         string                  `json:"start_time"`
	DurationMinutes   int                     `json:"duration_minutes" validate:"required,min=1"`
	Modality          models.WorkshopModality `json:"modality" validate:"required,oneof=PRESENCIAL VIRTUAL HIBRIDO"`
	MaxSeats          int                     `json:"max_seats" validate:"required,min=1"`
	AllowsCertificate bool                    `json:"allows_certificate"`
	RequiresSurvey    bool                    `json:"requires_survey"`
}

// UpdateWorkshopStatusRequest performs a lifecycle transition.
type UpdateWorkshopStatusRequest struct {
	Status models.WorkshopStatus `json:"status" validate:"required,oneof=ABIERTO CERRADO CANCELADO FINALIZADO"`
}

// UpdateWorkshopCapacityRequest changes the seat limit.
type UpdateWorkshopCapacityRequest struct {
	MaxSeats int `json:"max_seats" validate:"required,min=1"`
}

const workshopCatalogPattern = "catalog:workshops:*"

// WorkshopService handles workshop catalog reads and staff lifecycle writes.
type WorkshopService struct {
	repo        workshopRepository
	courses     courseReader
	enrollments activeEnrollmentCounter
	cache       *CacheService
	validator   *validator.Validate
	effects     effectsDispatcher
	logger      *zap.Logger
}

// NewWorkshopService creates an instance of WorkshopService.
func NewWorkshopService(repo workshopRepository, courses courseReader, enrollments activeEnrollmentCounter, cache *CacheService, validate *validator.Validate, effects effectsDispatcher, logger *zap.Logger) *WorkshopService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &WorkshopService{repo: repo, courses: courses, enrollments: enrollments, cache: cache, validator: validate, effects: effects, logger: logger}
}

type cachedWorkshopList struct {
	Workshops  []models.WorkshopDetail `json:"workshops"`
	Pagination models.Pagination       `json:"pagination"`
}

func workshopListCacheKey(filter models.WorkshopFilter) string {
	return fmt.Sprintf("catalog:workshops:%s:%s:%s:%t:%d:%d:%s:%s",
		filter.CourseID, filter.Status, filter.Modality, filter.PublicOnly,
		filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

// List returns paginated workshops; public catalog reads go through the cache.
func (s *WorkshopService) List(ctx context.Context, filter models.WorkshopFilter) ([]models.WorkshopDetail, *models.Pagination, error) {
	key := workshopListCacheKey(filter)
	if s.cache.Enabled() && filter.PublicOnly {
		var cached cachedWorkshopList
		if hit, _ := s.cache.Get(ctx, key, &cached); hit {
			pagination := cached.Pagination
			return cached.Workshops, &pagination, nil
		}
	}

	workshops, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list workshops")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}

	if s.cache.Enabled() && filter.PublicOnly {
		_ = s.cache.Set(ctx, key, cachedWorkshopList{Workshops: workshops, Pagination: *pagination}, 0)
	}
	return workshops, pagination, nil
}

// Get returns a workshop with its course context and recomputed seats.
func (s *WorkshopService) Get(ctx context.Context, id string) (*models.WorkshopDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}
	return detail, nil
}

// Create schedules a workshop under an existing course.
func (s *WorkshopService) Create(ctx context.Context, req CreateWorkshopRequest, actorID string, meta models.LoginRequest) (*models.Workshop, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid workshop payload")
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date precedes start date")
	}

	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	workshop := &models.Workshop{
		CourseID:          req.CourseID,
		Title:             req.Title,
		Description:       req.Description,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		StartTime:         req.StartTime,
		DurationMinutes:   req.DurationMinutes,
		Modality:          req.Modality,
		MaxSeats:          req.MaxSeats,
		Status:            models.WorkshopStatusOpen,
		AllowsCertificate: req.AllowsCertificate,
		RequiresSurvey:    req.RequiresSurvey,
	}
	if err := s.repo.Create(ctx, workshop); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create workshop")
	}
	s.invalidateCatalog(ctx)
	return workshop, nil
}

// UpdateStatus performs a lifecycle transition.
func (s *WorkshopService) UpdateStatus(ctx context.Context, id string, req UpdateWorkshopStatusRequest, actorID string, meta models.LoginRequest) (*models.Workshop, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}

	workshop, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}
	if workshop.Status == req.Status {
		return workshop, nil
	}

	if err := s.repo.UpdateStatus(ctx, id, req.Status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update workshop status")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"status": workshop.Status})
	newPayload, _ := json.Marshal(map[string]interface{}{"status": req.Status})
	if s.effects != nil {
		s.effects.Audit(models.AuditLog{
			UserID:     &actorID,
			Action:     models.AuditActionWorkshopStatus,
			Resource:   "workshops",
			ResourceID: &workshop.ID,
			OldValues:  oldPayload,
			NewValues:  newPayload,
			IPAddress:  meta.IP,
			UserAgent:  meta.UserAgent,
		})
	}
	s.invalidateCatalog(ctx)

	workshop.Status = req.Status
	return workshop, nil
}

// UpdateCapacity changes max seats. Shrinking below the current active count
// is rejected; the persisted counter is recomputed from the authoritative
// count, never adjusted from its previous value.
func (s *WorkshopService) UpdateCapacity(ctx context.Context, id string, req UpdateWorkshopCapacityRequest) (*models.Workshop, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid capacity payload")
	}

	workshop, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "workshop not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load workshop")
	}

	activeCount, err := s.enrollments.CountActive(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if req.MaxSeats < activeCount {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("capacity cannot drop below the %d active enrollments", activeCount))
	}

	if err := s.repo.UpdateMaxSeats(ctx, id, req.MaxSeats); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update workshop capacity")
	}
	s.invalidateCatalog(ctx)

	workshop.MaxSeats = req.MaxSeats
	workshop.AvailableSeats = req.MaxSeats - activeCount
	return workshop, nil
}

func (s *WorkshopService) invalidateCatalog(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, workshopCatalogPattern); err != nil {
		s.logger.Warn("failed to invalidate workshop catalog cache", zap.Error(err))
	}
}
