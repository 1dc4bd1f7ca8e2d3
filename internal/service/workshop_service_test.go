package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
)

type mockCacheStore struct {
	data        map[string][]byte
	sets        int
	invalidated []string
}

func (m *mockCacheStore) Get(ctx context.Context, key string, dest interface{}) error {
	b, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (m *mockCacheStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = b
	m.sets++
	return nil
}

func (m *mockCacheStore) DeleteByPattern(ctx context.Context, pattern string) error {
	m.invalidated = append(m.invalidated, pattern)
	m.data = nil
	return nil
}

type mockWorkshopRepo struct {
	listCalls int
	details   []models.WorkshopDetail
	byID      map[string]models.Workshop
	statuses  map[string]models.WorkshopStatus
	maxSeats  map[string]int
	created   *models.Workshop
}

func (m *mockWorkshopRepo) List(ctx context.Context, filter models.WorkshopFilter) ([]models.WorkshopDetail, int, error) {
	m.listCalls++
	return m.details, len(m.details), nil
}

func (m *mockWorkshopRepo) FindByID(ctx context.Context, id string) (*models.Workshop, error) {
	if w, ok := m.byID[id]; ok {
		return &w, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWorkshopRepo) FindDetailByID(ctx context.Context, id string) (*models.WorkshopDetail, error) {
	if w, ok := m.byID[id]; ok {
		return &models.WorkshopDetail{Workshop: w}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockWorkshopRepo) Create(ctx context.Context, workshop *models.Workshop) error {
	workshop.ID = "w-new"
	m.created = workshop
	return nil
}

func (m *mockWorkshopRepo) UpdateStatus(ctx context.Context, id string, status models.WorkshopStatus) error {
	if m.statuses == nil {
		m.statuses = make(map[string]models.WorkshopStatus)
	}
	m.statuses[id] = status
	return nil
}

func (m *mockWorkshopRepo) UpdateMaxSeats(ctx context.Context, id string, maxSeats int) error {
	if m.maxSeats == nil {
		m.maxSeats = make(map[string]int)
	}
	m.maxSeats[id] = maxSeats
	return nil
}

type mockCourseReader struct {
	courses map[string]models.Course
}

func (m *mockCourseReader) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func newWorkshopService(repo *mockWorkshopRepo, courses *mockCourseReader, counter *stubActiveCounter, cacheStore *mockCacheStore, effects *mockEffects) *WorkshopService {
	cache := NewCacheService(cacheStore, nil, time.Minute, zap.NewNop(), cacheStore != nil)
	return NewWorkshopService(repo, courses, counter, cache, validator.New(), effects, zap.NewNop())
}

func TestWorkshopServiceListCachesPublicReads(t *testing.T) {
	repo := &mockWorkshopRepo{details: []models.WorkshopDetail{{Workshop: models.Workshop{ID: "w1", Title: "Huertas urbanas"}}}}
	cacheStore := &mockCacheStore{}
	svc := newWorkshopService(repo, &mockCourseReader{}, &stubActiveCounter{}, cacheStore, &mockEffects{})

	filter := models.WorkshopFilter{PublicOnly: true, Page: 1, PageSize: 20}

	workshops, pagination, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, workshops, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, 1, cacheStore.sets)

	workshops, _, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, workshops, 1)
	assert.Equal(t, 1, repo.listCalls)
}

func TestWorkshopServiceListSkipsCacheForStaff(t *testing.T) {
	repo := &mockWorkshopRepo{details: []models.WorkshopDetail{{Workshop: models.Workshop{ID: "w1"}}}}
	cacheStore := &mockCacheStore{}
	svc := newWorkshopService(repo, &mockCourseReader{}, &stubActiveCounter{}, cacheStore, &mockEffects{})

	filter := models.WorkshopFilter{PublicOnly: false}
	_, _, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	_, _, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.listCalls)
	assert.Zero(t, cacheStore.sets)
}

func TestWorkshopServiceCreate(t *testing.T) {
	repo := &mockWorkshopRepo{}
	courses := &mockCourseReader{courses: map[string]models.Course{"c1": {ID: "c1", Title: "Oficios"}}}
	cacheStore := &mockCacheStore{}
	svc := newWorkshopService(repo, courses, &stubActiveCounter{}, cacheStore, &mockEffects{})

	workshop, err := svc.Create(context.Background(), CreateWorkshopRequest{
		CourseID:        "c1",
		Title:           "Huertas urbanas",
		StartDate:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		DurationMinutes: 120,
		Modality:        models.ModalityInPerson,
		MaxSeats:        25,
	}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, "w-new", workshop.ID)
	assert.Equal(t, models.WorkshopStatusOpen, workshop.Status)
	assert.Contains(t, cacheStore.invalidated, "catalog:workshops:*")
}

func TestWorkshopServiceCreateUnknownCourse(t *testing.T) {
	svc := newWorkshopService(&mockWorkshopRepo{}, &mockCourseReader{}, &stubActiveCounter{}, nil, &mockEffects{})

	_, err := svc.Create(context.Background(), CreateWorkshopRequest{
		CourseID:        "missing",
		Title:           "Huertas urbanas",
		StartDate:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		DurationMinutes: 120,
		Modality:        models.ModalityVirtual,
		MaxSeats:        25,
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkshopServiceCreateEndBeforeStart(t *testing.T) {
	svc := newWorkshopService(&mockWorkshopRepo{}, &mockCourseReader{}, &stubActiveCounter{}, nil, &mockEffects{})

	end := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), CreateWorkshopRequest{
		CourseID:        "c1",
		Title:           "Huertas urbanas",
		StartDate:       time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         &end,
		DurationMinutes: 120,
		Modality:        models.ModalityHybrid,
		MaxSeats:        25,
	}, "admin-1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestWorkshopServiceUpdateStatus(t *testing.T) {
	repo := &mockWorkshopRepo{byID: map[string]models.Workshop{"w1": {ID: "w1", Status: models.WorkshopStatusOpen}}}
	cacheStore := &mockCacheStore{}
	effects := &mockEffects{}
	svc := newWorkshopService(repo, &mockCourseReader{}, &stubActiveCounter{}, cacheStore, effects)

	workshop, err := svc.UpdateStatus(context.Background(), "w1", UpdateWorkshopStatusRequest{Status: models.WorkshopStatusFinalized}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.WorkshopStatusFinalized, workshop.Status)
	assert.Equal(t, models.WorkshopStatusFinalized, repo.statuses["w1"])
	assert.Len(t, effects.audits, 1)
	assert.Equal(t, models.AuditActionWorkshopStatus, effects.audits[0].Action)
	assert.Contains(t, cacheStore.invalidated, "catalog:workshops:*")
}

func TestWorkshopServiceUpdateStatusNoOp(t *testing.T) {
	repo := &mockWorkshopRepo{byID: map[string]models.Workshop{"w1": {ID: "w1", Status: models.WorkshopStatusOpen}}}
	effects := &mockEffects{}
	svc := newWorkshopService(repo, &mockCourseReader{}, &stubActiveCounter{}, nil, effects)

	workshop, err := svc.UpdateStatus(context.Background(), "w1", UpdateWorkshopStatusRequest{Status: models.WorkshopStatusOpen}, "admin-1", models.LoginRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.WorkshopStatusOpen, workshop.Status)
	assert.Empty(t, repo.statuses)
	assert.Empty(t, effects.audits)
}

func TestWorkshopServiceUpdateCapacity(t *testing.T) {
	repo := &mockWorkshopRepo{byID: map[string]models.Workshop{"w1": {ID: "w1", MaxSeats: 10}}}
	svc := newWorkshopService(repo, &mockCourseReader{}, &stubActiveCounter{count: 8}, nil, &mockEffects{})

	workshop, err := svc.UpdateCapacity(context.Background(), "w1", UpdateWorkshopCapacityRequest{MaxSeats: 12})
	require.NoError(t, err)
	assert.Equal(t, 12, workshop.MaxSeats)
	assert.Equal(t, 4, workshop.AvailableSeats)
	assert.Equal(t, 12, repo.maxSeats["w1"])
}

func TestWorkshopServiceUpdateCapacityBelowActiveCount(t *testing.T) {
	repo := &mockWorkshopRepo{byID: map[string]models.Workshop{"w1": {ID: "w1", MaxSeats: 10}}}
	svc := newWorkshopService(repo, &mockCourseReader{}, &stubActiveCounter{count: 8}, nil, &mockEffects{})

	_, err := svc.UpdateCapacity(context.Background(), "w1", UpdateWorkshopCapacityRequest{MaxSeats: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.maxSeats)
}
