package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	appErrors "github.com/fundacion-aprender/portal-api/pkg/errors"
)

type mockCourseRepo struct {
	listCalls int
	courses   map[string]models.Course
	created   *models.Course
	updated   *models.Course
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	m.listCalls++
	list := make([]models.Course, 0, len(m.courses))
	for _, c := range m.courses {
		list = append(list, c)
	}
	return list, len(list), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		return &c, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	course.ID = "c-new"
	m.created = course
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	m.updated = course
	return nil
}

func newCourseService(repo *mockCourseRepo, cacheStore *mockCacheStore) *CourseService {
	cache := NewCacheService(cacheStore, nil, time.Minute, zap.NewNop(), cacheStore != nil)
	return NewCourseService(repo, cache, validator.New(), zap.NewNop())
}

func TestCourseServiceListCachesPublicReads(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{"c1": {ID: "c1", Title: "Oficios", Public: true}}}
	cacheStore := &mockCacheStore{}
	svc := newCourseService(repo, cacheStore)

	filter := models.CourseFilter{PublicOnly: true, Page: 1, PageSize: 20}
	courses, _, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Len(t, courses, 1)

	_, _, err = svc.List(context.Background(), filter)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.listCalls)
}

func TestCourseServiceGetHidesPrivateCourses(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{"c1": {ID: "c1", Title: "Interno", Public: false}}}
	svc := newCourseService(repo, nil)

	_, err := svc.Get(context.Background(), "c1", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	course, err := svc.Get(context.Background(), "c1", true)
	require.NoError(t, err)
	assert.Equal(t, "c1", course.ID)
}

func TestCourseServiceCreateInvalidatesCatalog(t *testing.T) {
	repo := &mockCourseRepo{}
	cacheStore := &mockCacheStore{}
	svc := newCourseService(repo, cacheStore)

	course, err := svc.Create(context.Background(), CourseRequest{Title: "Oficios", Public: true})
	require.NoError(t, err)
	assert.Equal(t, "c-new", course.ID)
	assert.Contains(t, cacheStore.invalidated, "catalog:courses:*")
}

func TestCourseServiceUpdate(t *testing.T) {
	repo := &mockCourseRepo{courses: map[string]models.Course{"c1": {ID: "c1", Title: "Oficios", Public: false}}}
	svc := newCourseService(repo, nil)

	course, err := svc.Update(context.Background(), "c1", CourseRequest{Title: "Oficios digitales", Public: true})
	require.NoError(t, err)
	assert.Equal(t, "Oficios digitales", course.Title)
	assert.True(t, course.Public)
	require.NotNil(t, repo.updated)
}
