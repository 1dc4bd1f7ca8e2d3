package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fundacion-aprender/portal-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments. Seat reservation
// runs through the Tx variants inside a serializable transaction opened with
// BeginSerializable; everything else uses the pool directly.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// BeginSerializable opens the strict-isolation transaction used for seat reservation.
func (r *EnrollmentRepository) BeginSerializable(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin serializable tx: %w", err)
	}
	return tx, nil
}

// Begin opens a default-isolation transaction (withdrawal, seat recompute).
func (r *EnrollmentRepository) Begin(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.user_id
LEFT JOIN workshops w ON w.id = e.workshop_id`
	var conditions []string
	var args []interface{}

	if filter.WorkshopID != "" {
		conditions = append(conditions, fmt.Sprintf("e.workshop_id = $%d", len(args)+1))
		args = append(args, filter.WorkshopID)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":     "e.created_at",
		"user_name":      "u.full_name",
		"workshop_title": "w.title",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.workshop_id, e.user_id, e.status, e.attended, e.created_at, e.updated_at,
        u.full_name AS user_name, u.email AS user_email, w.title AS workshop_title
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, workshop_id, user_id, status, attended, created_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with user and workshop info.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.workshop_id, e.user_id, e.status, e.attended, e.created_at, e.updated_at,
        u.full_name AS user_name, u.email AS user_email, w.title AS workshop_title
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.user_id
        LEFT JOIN workshops w ON w.id = e.workshop_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindByWorkshopAndUser returns the single enrollment row for the pair, if any.
func (r *EnrollmentRepository) FindByWorkshopAndUser(ctx context.Context, workshopID, userID string) (*models.Enrollment, error) {
	const query = `SELECT id, workshop_id, user_id, status, attended, created_at, updated_at FROM enrollments WHERE workshop_id = $1 AND user_id = $2`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, workshopID, userID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindByWorkshopAndUserTx is the in-transaction variant of FindByWorkshopAndUser.
func (r *EnrollmentRepository) FindByWorkshopAndUserTx(ctx context.Context, tx *sqlx.Tx, workshopID, userID string) (*models.Enrollment, error) {
	const query = `SELECT id, workshop_id, user_id, status, attended, created_at, updated_at FROM enrollments WHERE workshop_id = $1 AND user_id = $2`
	var enrollment models.Enrollment
	if err := tx.GetContext(ctx, &enrollment, query, workshopID, userID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountActive returns the authoritative count of seats taken for a workshop.
func (r *EnrollmentRepository) CountActive(ctx context.Context, workshopID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE workshop_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, workshopID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// CountActiveTx is the in-transaction variant of CountActive.
func (r *EnrollmentRepository) CountActiveTx(ctx context.Context, tx *sqlx.Tx, workshopID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE workshop_id = $1 AND status = $2`
	var count int
	if err := tx.GetContext(ctx, &count, query, workshopID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// CreateTx inserts a new active enrollment inside the reservation transaction.
func (r *EnrollmentRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, workshop_id, user_id, status, attended, created_at, updated_at)
        VALUES (:id, :workshop_id, :user_id, :status, :attended, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// ReactivateTx flips a cancelled row back to active, clearing attendance and
// refreshing the enrollment timestamp.
func (r *EnrollmentRepository) ReactivateTx(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
	const query = `UPDATE enrollments SET status = $2, attended = FALSE, created_at = $3, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, models.EnrollmentStatusActive, now); err != nil {
		return fmt.Errorf("reactivate enrollment: %w", err)
	}
	return nil
}

// UpdateStatusTx updates the status of an enrollment inside a transaction.
func (r *EnrollmentRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus, now time.Time) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id, status, now); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// SetAttendance records the staff-set attendance flag.
func (r *EnrollmentRepository) SetAttendance(ctx context.Context, id string, attended bool) error {
	const query = `UPDATE enrollments SET attended = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, attended, time.Now().UTC()); err != nil {
		return fmt.Errorf("set attendance: %w", err)
	}
	return nil
}

// ListDetailsByIDs loads enrollments with user/workshop context for batch workflows.
func (r *EnrollmentRepository) ListDetailsByIDs(ctx context.Context, ids []string) ([]models.EnrollmentDetail, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT e.id, e.workshop_id, e.user_id, e.status, e.attended, e.created_at, e.updated_at,
        u.full_name AS user_name, u.email AS user_email, w.title AS workshop_title
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.user_id
        LEFT JOIN workshops w ON w.id = e.workshop_id
        WHERE e.id IN (%s)`, strings.Join(placeholders, ","))
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments by ids: %w", err)
	}
	return details, nil
}
