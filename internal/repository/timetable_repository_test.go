package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

func TestTimetableRepositoryCreateDefaultsToDraft(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec("INSERT INTO timetables").
		WillReturnResult(sqlmock.NewResult(1, 1))

	timetable := &models.Timetable{Name: "CS Fall", Department: "CS", Semester: 3, Year: 2}
	require.NoError(t, repo.Create(context.Background(), nil, timetable))
	assert.NotEmpty(t, timetable.ID)
	assert.Equal(t, models.TimetableStatusDraft, timetable.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindByIDDecodesConflicts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "department", "semester", "academic_year", "constraints_text", "status", "conflicts", "created_at", "updated_at"}).
		AddRow("tt-1", "CS Fall", "CS", 3, 2, "", "published", []byte(`[{"type":"unassigned_course","message":"CS101 is missing 1 weekly hour","references":{"courseIds":["c1"]}}]`), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + timetableColumns + " FROM timetables WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnRows(rows)

	timetable, err := repo.FindByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, timetable.Year)
	assert.Equal(t, models.TimetableStatusPublished, timetable.Status)
	require.Len(t, timetable.Conflicts, 1)
	assert.Equal(t, models.ConflictUnassignedCourse, timetable.Conflicts[0].Type)
	assert.Equal(t, []string{"c1"}, timetable.Conflicts[0].References.CourseIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryListByStatusAndYear(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + timetableColumns + " FROM timetables WHERE semester = $1 AND academic_year = $2 AND status = $3 ORDER BY created_at DESC, id ASC")).
		WithArgs(3, 2, models.TimetableStatusPublished).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	list, err := repo.List(context.Background(), models.TimetableFilter{Semester: 3, Year: 2, Status: models.TimetableStatusPublished})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryUpdateAndDeleteInTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE timetables SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetables WHERE id = $1")).
		WithArgs("tt-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)

	require.NoError(t, repo.Update(context.Background(), tx, &models.Timetable{ID: "tt-1", Name: "Renamed", Status: models.TimetableStatusDraft}))
	assert.ErrorIs(t, repo.Delete(context.Background(), tx, "tt-2"), sql.ErrNoRows)
	require.NoError(t, tx.Rollback())
	assert.NoError(t, mock.ExpectationsWereMet())
}
