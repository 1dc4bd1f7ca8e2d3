package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
)

func newTxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

type mockSeatRepo struct {
	db          *sqlx.DB
	rows        map[string]models.Enrollment // key workshopID|userID
	byID        map[string]models.Enrollment
	activeCount int
	hideFromTx  bool
	createErr   error
	created     *models.Enrollment
	reactivated []string
	statuses    map[string]models.EnrollmentStatus
	attendance  map[string]bool
}

func seatKey(workshopID, userID string) string { return workshopID + "|" + userID }

func (m *mockSeatRepo) BeginSerializable(ctx context.Context) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (m *mockSeatRepo) Begin(ctx context.Context) (*sqlx.Tx, error) {
	return m.db.BeginTxx(ctx, nil)
}

func (m *mockSeatRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *mockSeatRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.byID[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSeatRepo) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	if e, ok := m.byID[id]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSeatRepo) FindByWorkshopAndUser(ctx context.Context, workshopID, userID string) (*models.Enrollment, error) {
	if e, ok := m.rows[seatKey(workshopID, userID)]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSeatRepo) FindByWorkshopAndUserTx(ctx context.Context, tx *sqlx.Tx, workshopID, userID string) (*models.Enrollment, error) {
	if m.hideFromTx {
		return nil, sql.ErrNoRows
	}
	return m.FindByWorkshopAndUser(ctx, workshopID, userID)
}

func (m *mockSeatRepo) CountActiveTx(ctx context.Context, tx *sqlx.Tx, workshopID string) (int, error) {
	return m.activeCount, nil
}

func (m *mockSeatRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	enrollment.ID = "new-enroll"
	enrollment.Status = models.EnrollmentStatusActive
	m.created = enrollment
	return nil
}

func (m *mockSeatRepo) ReactivateTx(ctx context.Context, tx *sqlx.Tx, id string, now time.Time) error {
	m.reactivated = append(m.reactivated, id)
	return nil
}

func (m *mockSeatRepo) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id string, status models.EnrollmentStatus, now time.Time) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.EnrollmentStatus)
	}
	m.statuses[id] = status
	return nil
}

func (m *mockSeatRepo) SetAttendance(ctx context.Context, id string, attended bool) error {
	if m.attendance == nil {
		m.attendance = make(map[string]bool)
	}
	m.attendance[id] = attended
	return nil
}

func (m *mockSeatRepo) CountActive(ctx context.Context, workshopID string) (int, error) {
	return m.activeCount, nil
}

type mockSeatWorkshops struct {
	workshops  map[string]models.Workshop
	seatWrites []int
}

func (m *mockSeatWorkshops) FindByID(ctx context.Context, id string) (*models.Workshop, error) {
	if w, ok := m.workshops[id]; ok {
		return &w, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSeatWorkshops) FindByIDTx(ctx context.Context, tx *sqlx.Tx, id string) (*models.Workshop, error) {
	return m.FindByID(ctx, id)
}

func (m *mockSeatWorkshops) SetAvailableSeatsTx(ctx context.Context, tx *sqlx.Tx, id string, available int) error {
	m.seatWrites = append(m.seatWrites, available)
	return nil
}

type mockEffects struct {
	audits   []models.AuditLog
	subjects []string
}

func (m *mockEffects) Audit(log models.AuditLog) { m.audits = append(m.audits, log) }

func (m *mockEffects) Notify(toName, toEmail, subject, body string) {
	m.subjects = append(m.subjects, subject)
}

func openWorkshop(maxSeats int) models.Workshop {
	return models.Workshop{ID: "w1", CourseID: "c1", Title: "Huertas urbanas", Status: models.WorkshopStatusOpen, MaxSeats: maxSeats}
}

func TestEnrollmentServiceEnrollCreates(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &mockSeatRepo{db: db, activeCount: 3}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	effects := &mockEffects{}
	svc := NewEnrollmentService(repo, workshops, NewCapacityLedger(repo), nil, effects, zap.NewNop())

	result, err := svc.Enroll(context.Background(), "w1", "u1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentOutcomeCreated, result.Outcome)
	assert.NotNil(t, repo.created)
	assert.Equal(t, []int{6}, workshops.seatWrites)
	assert.Len(t, effects.audits, 1)
	assert.Equal(t, models.AuditActionEnroll, effects.audits[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceEnrollFullFastPath(t *testing.T) {
	db, _ := newTxMock(t)
	repo := &mockSeatRepo{db: db, activeCount: 10}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	svc := NewEnrollmentService(repo, workshops, NewCapacityLedger(repo), nil, &mockEffects{}, zap.NewNop())

	_, err := svc.Enroll(context.Background(), "w1", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWorkshopFull.Code, appErrors.FromError(err).Code)
	assert.Empty(t, workshops.seatWrites)
}

func TestEnrollmentServiceEnrollFullInsideTransaction(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	repo := &mockSeatRepo{db: db, activeCount: 10}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	svc := NewEnrollmentService(repo, workshops, nil, nil, &mockEffects{}, zap.NewNop())

	_, err := svc.Enroll(context.Background(), "w1", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWorkshopFull.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceEnrollNotOpen(t *testing.T) {
	db, _ := newTxMock(t)
	closed := openWorkshop(10)
	closed.Status = models.WorkshopStatusClosed
	repo := &mockSeatRepo{db: db}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": closed}}
	svc := NewEnrollmentService(repo, workshops, NewCapacityLedger(repo), nil, &mockEffects{}, zap.NewNop())

	_, err := svc.Enroll(context.Background(), "w1", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrWorkshopNotOpen.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollAlreadyActiveIdempotent(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	repo := &mockSeatRepo{
		db:          db,
		activeCount: 4,
		rows: map[string]models.Enrollment{
			seatKey("w1", "u1"): {ID: "e1", WorkshopID: "w1", UserID: "u1", Status: models.EnrollmentStatusActive},
		},
	}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	svc := NewEnrollmentService(repo, workshops, NewCapacityLedger(repo), nil, &mockEffects{}, zap.NewNop())

	result, err := svc.Enroll(context.Background(), "w1", "u1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentOutcomeAlreadyActive, result.Outcome)
	assert.Equal(t, "e1", result.Enrollment.ID)
	assert.Empty(t, workshops.seatWrites)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceEnrollReactivatesCancelledRow(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &mockSeatRepo{
		db:          db,
		activeCount: 2,
		rows: map[string]models.Enrollment{
			seatKey("w1", "u1"): {ID: "e1", WorkshopID: "w1", UserID: "u1", Status: models.EnrollmentStatusCancelled, Attended: true},
		},
	}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	svc := NewEnrollmentService(repo, workshops, NewCapacityLedger(repo), nil, &mockEffects{}, zap.NewNop())

	result, err := svc.Enroll(context.Background(), "w1", "u1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentOutcomeReactivated, result.Outcome)
	assert.Contains(t, repo.reactivated, "e1")
	assert.False(t, result.Enrollment.Attended)
	assert.Equal(t, models.EnrollmentStatusActive, result.Enrollment.Status)
	assert.Equal(t, []int{7}, workshops.seatWrites)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceEnrollSerializationConflict(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	repo := &mockSeatRepo{db: db, activeCount: 1, createErr: &pq.Error{Code: "40001"}}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	svc := NewEnrollmentService(repo, workshops, NewCapacityLedger(repo), nil, &mockEffects{}, zap.NewNop())

	_, err := svc.Enroll(context.Background(), "w1", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrTryAgain.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceEnrollUniqueRaceResolvesToExistingRow(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	// The concurrent winner's row is invisible inside the failed transaction but
	// shows up in the follow-up lookup.
	repo := &mockSeatRepo{
		db:          db,
		activeCount: 1,
		hideFromTx:  true,
		createErr:   &pq.Error{Code: "23505"},
		rows: map[string]models.Enrollment{
			seatKey("w1", "u1"): {ID: "e-winner", WorkshopID: "w1", UserID: "u1", Status: models.EnrollmentStatusActive},
		},
	}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	svc := NewEnrollmentService(repo, workshops, nil, nil, &mockEffects{}, zap.NewNop())

	result, err := svc.Enroll(context.Background(), "w1", "u1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentOutcomeAlreadyActive, result.Outcome)
	assert.Equal(t, "e-winner", result.Enrollment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceWithdraw(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	repo := &mockSeatRepo{
		db:          db,
		activeCount: 5,
		rows: map[string]models.Enrollment{
			seatKey("w1", "u1"): {ID: "e1", WorkshopID: "w1", UserID: "u1", Status: models.EnrollmentStatusActive},
		},
	}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	effects := &mockEffects{}
	svc := NewEnrollmentService(repo, workshops, nil, nil, effects, zap.NewNop())

	err := svc.Withdraw(context.Background(), "w1", "u1", "u1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, repo.statuses["e1"])
	assert.Equal(t, []int{5}, workshops.seatWrites)
	assert.Len(t, effects.audits, 1)
	assert.Equal(t, models.AuditActionWithdraw, effects.audits[0].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceWithdrawNotEnrolled(t *testing.T) {
	db, mock := newTxMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	repo := &mockSeatRepo{db: db}
	workshops := &mockSeatWorkshops{workshops: map[string]models.Workshop{"w1": openWorkshop(10)}}
	svc := NewEnrollmentService(repo, workshops, nil, nil, &mockEffects{}, zap.NewNop())

	err := svc.Withdraw(context.Background(), "w1", "u1", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErrors.FromError(err).Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentServiceSetAttendance(t *testing.T) {
	db, _ := newTxMock(t)
	repo := &mockSeatRepo{
		db:   db,
		byID: map[string]models.Enrollment{"e1": {ID: "e1", WorkshopID: "w1", UserID: "u1", Status: models.EnrollmentStatusActive}},
	}
	effects := &mockEffects{}
	svc := NewEnrollmentService(repo, &mockSeatWorkshops{}, nil, nil, effects, zap.NewNop())

	enrollment, err := svc.SetAttendance(context.Background(), "e1", true, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, enrollment.Attended)
	assert.True(t, repo.attendance["e1"])
	assert.Len(t, effects.audits, 1)
	assert.Equal(t, models.AuditActionAttendanceUpdate, effects.audits[0].Action)
}

func TestEnrollmentServiceSetAttendanceCancelledRow(t *testing.T) {
	db, _ := newTxMock(t)
	repo := &mockSeatRepo{
		db:   db,
		byID: map[string]models.Enrollment{"e1": {ID: "e1", Status: models.EnrollmentStatusCancelled}},
	}
	svc := NewEnrollmentService(repo, &mockSeatWorkshops{}, nil, nil, &mockEffects{}, zap.NewNop())

	_, err := svc.SetAttendance(context.Background(), "e1", true, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, appErrors.FromError(err).Code)
}
