package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fundacion-aprender/portal-api/internal/models"
)

// activeSeatsExpr recomputes available seats from the authoritative enrollment
// count on every read, so list and detail views never trust the persisted column.
const activeSeatsExpr = `w.max_seats - (SELECT COUNT(*) FROM enrollments e WHERE e.workshop_id = w.id AND e.status = 'ACTIVA') AS available_seats`

// WorkshopRepository handles persistence of workshops.
type WorkshopRepository struct {
	db *sqlx.DB
}

// NewWorkshopRepository constructs the repository.
func NewWorkshopRepository(db *sqlx.DB) *WorkshopRepository {
	return &WorkshopRepository{db: db}
}

// List returns workshops filtered by the provided criteria.
func (r *WorkshopRepository) List(ctx context.Context, filter models.WorkshopFilter) ([]models.WorkshopDetail, int, error) {
	base := `FROM workshops w
LEFT JOIN courses c ON c.id = w.course_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("w.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("w.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Modality != "" {
		conditions = append(conditions, fmt.Sprintf("w.modality = $%d", len(args)+1))
		args = append(args, filter.Modality)
	}
	if filter.PublicOnly {
		conditions = append(conditions, "c.public = TRUE")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"start_date": "w.start_date",
		"title":      "w.title",
		"created_at": "w.created_at",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "start_date"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "w.start_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT w.id, w.course_id, w.title, w.description, w.start_date, w.end_date, w.start_time,
        w.duration_minutes, w.modality, w.max_seats, %s, w.status, w.allows_certificate, w.requires_survey, w.created_at, w.updated_at,
        c.title AS course_title
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, activeSeatsExpr, base+clause, orderBy, order, size, offset)

	var workshops []models.WorkshopDetail
	if err := r.db.SelectContext(ctx, &workshops, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list workshops: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count workshops: %w", err)
	}
	return workshops, total, nil
}

// FindByID returns a workshop with seats recomputed from the active count.
func (r *WorkshopRepository) FindByID(ctx context.Context, id string) (*models.Workshop, error) {
	query := fmt.Sprintf(`SELECT w.id, w.course_id, w.title, w.description, w.start_date, w.end_date, w.start_time,
        w.duration_minutes, w.modality, w.max_seats, %s, w.status, w.allows_certificate, w.requires_survey, w.created_at, w.updated_at
        FROM workshops w WHERE w.id = $1`, activeSeatsExpr)
	var workshop models.Workshop
	if err := r.db.GetContext(ctx, &workshop, query, id); err != nil {
		return nil, err
	}
	return &workshop, nil
}

// FindDetailByID returns a workshop with course info.
func (r *WorkshopRepository) FindDetailByID(ctx context.Context, id string) (*models.WorkshopDetail, error) {
	query := fmt.Sprintf(`SELECT w.id, w.course_id, w.title, w.description, w.start_date, w.end_date, w.start_time,
        w.duration_minutes, w.modality, w.max_seats, %s, w.status, w.allows_certificate, w.requires_survey, w.created_at, w.updated_at,
        c.title AS course_title
        FROM workshops w LEFT JOIN courses c ON c.id = w.course_id WHERE w.id = $1`, activeSeatsExpr)
	var detail models.WorkshopDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByIDTx re-reads the workshop row inside the reservation transaction.
func (r *WorkshopRepository) FindByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Workshop, error) {
	const query = `SELECT id, course_id, title, description, start_date, end_date, start_time, duration_minutes, modality,
        max_seats, available_seats, status, allows_certificate, requires_survey, created_at, updated_at
        FROM workshops WHERE id = $1`
	var workshop models.Workshop
	if err := tx.GetContext(ctx, &workshop, query, id); err != nil {
		return nil, err
	}
	return &workshop, nil
}

// SetAvailableSeatsTx persists the derived seat counter inside a transaction.
func (r *WorkshopRepository) SetAvailableSeatsTx(ctx context.Context, tx *sqlx.Tx, id string, available int) error {
	const query = `UPDATE workshops SET available_seats = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, available, time.Now().UTC()); err != nil {
		return fmt.Errorf("set available seats: %w", err)
	}
	return nil
}

// Create persists a new workshop.
func (r *WorkshopRepository) Create(ctx context.Context, workshop *models.Workshop) error {
	if workshop.ID == "" {
		workshop.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if workshop.CreatedAt.IsZero() {
		workshop.CreatedAt = now
	}
	workshop.UpdatedAt = now
	if workshop.Status == "" {
		workshop.Status = models.WorkshopStatusOpen
	}
	workshop.AvailableSeats = workshop.MaxSeats
	const query = `INSERT INTO workshops (id, course_id, title, description, start_date, end_date, start_time, duration_minutes, modality,
        max_seats, available_seats, status, allows_certificate, requires_survey, created_at, updated_at)
        VALUES (:id, :course_id, :title, :description, :start_date, :end_date, :start_time, :duration_minutes, :modality,
        :max_seats, :available_seats, :status, :allows_certificate, :requires_survey, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, workshop); err != nil {
		return fmt.Errorf("create workshop: %w", err)
	}
	return nil
}

// UpdateStatus performs a lifecycle transition.
func (r *WorkshopRepository) UpdateStatus(ctx context.Context, id string, status models.WorkshopStatus) error {
	const query = `UPDATE workshops SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update workshop status: %w", err)
	}
	return nil
}

// UpdateMaxSeats changes capacity and re-persists the derived counter from the
// authoritative active count, never from the possibly stale column.
func (r *WorkshopRepository) UpdateMaxSeats(ctx context.Context, id string, maxSeats int) error {
	const query = `UPDATE workshops SET max_seats = $2,
        available_seats = $2 - (SELECT COUNT(*) FROM enrollments e WHERE e.workshop_id = workshops.id AND e.status = $3),
        updated_at = $4 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, maxSeats, models.EnrollmentStatusActive, time.Now().UTC()); err != nil {
		return fmt.Errorf("update workshop capacity: %w", err)
	}
	return nil
}
