package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundacion-aprender/portal-api/internal/models"
)

func courseColumns() []string {
	return []string{"id", "title", "description", "public", "created_at", "updated_at"}
}

func TestCourseListPublicOnlyWithSearch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(courseColumns()).
		AddRow("c1", "Oficios digitales", "Introducción", true, now, now)
	mock.ExpectQuery(`WHERE public = TRUE AND \(LOWER\(title\) LIKE \$1 OR LOWER\(description\) LIKE \$1\)`).
		WithArgs("%oficios%").
		WillReturnRows(rows)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses`).
		WithArgs("%oficios%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{PublicOnly: true, Search: "Oficios"})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Oficios digitales", courses[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseListRejectsUnknownSortColumn(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(`ORDER BY title ASC`).WillReturnRows(sqlmock.NewRows(courseColumns()))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.CourseFilter{SortBy: "public; DROP TABLE courses"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(0, 1))

	course := &models.Course{Title: "Huertas urbanas", Public: true}
	require.NoError(t, repo.Create(context.Background(), course))
	assert.NotEmpty(t, course.ID)
	assert.False(t, course.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("UPDATE courses SET").WillReturnResult(sqlmock.NewResult(0, 1))

	course := &models.Course{ID: "c1", Title: "Huertas urbanas", Public: false}
	require.NoError(t, repo.Update(context.Background(), course))
	assert.False(t, course.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
