package service

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-scheduler-api/internal/dto"
	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
)

type sqlmockTx struct {
	db *sqlx.DB
}

func (p *sqlmockTx) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

func newSQLMockTx(t *testing.T) (*sqlmockTx, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &sqlmockTx{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func toInputs(entries []models.ScheduleEntry) []dto.ScheduleEntryInput {
	out := make([]dto.ScheduleEntryInput, len(entries))
	for i, e := range entries {
		out[i] = dto.ScheduleEntryInput{
			CourseID:  e.CourseID,
			FacultyID: e.FacultyID,
			RoomID:    e.RoomID,
			Day:       e.Day,
			StartTime: e.StartTime,
			EndTime:   e.EndTime,
			TimeSlot:  e.TimeSlot,
		}
	}
	return out
}

func conflictKinds(conflicts []models.Conflict) []models.ConflictType {
	kinds := make([]models.ConflictType, len(conflicts))
	for i, c := range conflicts {
		kinds[i] = c.Type
	}
	return kinds
}

func generateCS(t *testing.T, fx *timetableFixture) *models.Timetable {
	t.Helper()
	timetable, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{
		Department:   "CS",
		Semester:     3,
		AcademicYear: 2026,
	})
	require.NoError(t, err)
	return timetable
}

func TestTimetableServiceGenerateSingleCourse(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 2)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)

	timetable := generateCS(t, fx)

	assert.NotEmpty(t, timetable.ID)
	assert.Equal(t, "CS S3 2026", timetable.Name)
	assert.Equal(t, models.TimetableStatusDraft, timetable.Status)
	assert.Equal(t, 2026, timetable.Year)
	require.Len(t, timetable.Schedule, 2)
	assert.Empty(t, timetable.Conflicts)
	for _, entry := range timetable.Schedule {
		assert.Equal(t, "c1", entry.CourseID)
		assert.Equal(t, entry.StartTime+"-"+entry.EndTime, entry.TimeSlot)
	}

	stored, err := fx.service.Get(context.Background(), timetable.ID)
	require.NoError(t, err)
	assert.Equal(t, timetable.Schedule, stored.Schedule)
}

func TestTimetableServiceGenerateUsesTransaction(t *testing.T) {
	tx, mock := newSQLMockTx(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, tx)

	generateCS(t, fx)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableServiceGenerateRejectsMissingDepartment(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{}, nil)

	_, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{Semester: 3, AcademicYear: 2026})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, fx.timetables.rows)
}

func TestTimetableServiceGenerateRejectsPrerequisiteCycle(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{
			csCourse("c1", "CS201", 1, "CS202"),
			csCourse("c2", "CS202", 1, "CS201"),
		},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)

	_, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{Department: "CS", Semester: 3, AcademicYear: 2026})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrDataInconsistency.Code, appErr.Code)
	assert.Equal(t, 422, appErr.Status)
	assert.Empty(t, fx.timetables.rows)
}

func TestTimetableServiceStatusToggleKeepsContent(t *testing.T) {
	slot := models.TimeInterval{Start: "09:00", End: "10:00"}
	faculty := csFaculty("f1")
	faculty.Availability = models.Availability{"monday": {slot}}
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1), csCourse("c2", "CS202", 1)},
		faculty: []models.Faculty{faculty},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)

	generated := generateCS(t, fx)
	require.Len(t, generated.Schedule, 1)
	require.Equal(t, []models.ConflictType{models.ConflictUnassignedCourse}, conflictKinds(generated.Conflicts))
	detections := fx.detector.calls

	for round := 0; round < 2; round++ {
		for _, status := range []models.TimetableStatus{models.TimetableStatusPublished, models.TimetableStatusDraft} {
			updated, err := fx.service.Update(context.Background(), generated.ID, dto.UpdateTimetableRequest{
				Name:     generated.Name,
				Status:   status,
				Schedule: toInputs(generated.Schedule),
			})
			require.NoError(t, err)
			assert.Equal(t, status, updated.Status)
			assert.Equal(t, generated.Schedule, updated.Schedule)
			assert.Equal(t, generated.Conflicts, updated.Conflicts)
		}
	}

	assert.Equal(t, detections, fx.detector.calls)
	assert.Equal(t, 1, fx.entries.replaced)
}

func TestTimetableServiceManualEditRecomputesConflicts(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1), csCourse("c2", "CS202", 1)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)
	require.Empty(t, generated.Conflicts)

	edited := []dto.ScheduleEntryInput{
		{CourseID: "c1", FacultyID: "f1", RoomID: "r1", Day: "monday", StartTime: "09:00", EndTime: "10:00"},
		{CourseID: "c2", FacultyID: "f1", RoomID: "r1", Day: "Monday", StartTime: "09:00", EndTime: "10:00"},
	}
	updated, err := fx.service.Update(context.Background(), generated.ID, dto.UpdateTimetableRequest{Schedule: edited})
	require.NoError(t, err)

	assert.Equal(t, "Monday", updated.Schedule[0].Day)
	assert.ElementsMatch(t,
		[]models.ConflictType{models.ConflictFacultyDoubleBooked, models.ConflictRoomDoubleBooked},
		conflictKinds(updated.Conflicts))
	assert.Equal(t, 2, fx.entries.replaced)
}

func TestTimetableServiceManualEditUnknownCourse(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)

	_, err := fx.service.Update(context.Background(), generated.ID, dto.UpdateTimetableRequest{
		Schedule: []dto.ScheduleEntryInput{{CourseID: "ghost", FacultyID: "f1", RoomID: "r1", Day: "Monday", StartTime: "09:00", EndTime: "10:00"}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDataInconsistency.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceUpdateRejectsUnknownStatus(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{}, nil)

	_, err := fx.service.Update(context.Background(), "tt-1", dto.UpdateTimetableRequest{Status: "archived"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceRegenerateKeepsStatus(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 2)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)
	_, err := fx.service.Update(context.Background(), generated.ID, dto.UpdateTimetableRequest{Status: models.TimetableStatusPublished})
	require.NoError(t, err)

	fx.catalogue.courses = append(fx.catalogue.courses, csCourse("c2", "CS202", 1))
	regenerated, err := fx.service.Regenerate(context.Background(), generated.ID)
	require.NoError(t, err)

	assert.Equal(t, generated.ID, regenerated.ID)
	assert.Equal(t, models.TimetableStatusPublished, regenerated.Status)
	assert.Len(t, regenerated.Schedule, 3)
	assert.Empty(t, regenerated.Conflicts)
}

func TestTimetableServicePublishedTimetablesReserveFaculty(t *testing.T) {
	faculty := models.Faculty{
		ID:             "f1",
		Name:           "Shared",
		Department:     "CS",
		Specialization: models.StringList{"CS", "MATH"},
		Availability:   models.Availability{"monday": {{Start: "09:00", End: "10:00"}}},
	}
	math := csCourse("m1", "MA101", 1)
	math.Department = "MATH"
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1), math},
		faculty: []models.Faculty{faculty},
		rooms:   []models.Room{lectureRoom("r1", 60), lectureRoom("r2", 60)},
	}, nil)

	cs := generateCS(t, fx)
	require.Len(t, cs.Schedule, 1)
	_, err := fx.service.Update(context.Background(), cs.ID, dto.UpdateTimetableRequest{Status: models.TimetableStatusPublished})
	require.NoError(t, err)

	mathTimetable, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{Department: "math", Semester: 3, AcademicYear: 2026})
	require.NoError(t, err)
	assert.Empty(t, mathTimetable.Schedule)
	assert.Equal(t, []models.ConflictType{models.ConflictUnassignedCourse}, conflictKinds(mathTimetable.Conflicts))
}

func TestTimetableServiceValidateAndRevalidate(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)
	require.Empty(t, generated.Conflicts)

	fx.catalogue.rooms[0].Capacity = 10
	validated, err := fx.service.Validate(context.Background(), generated.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.ConflictType{models.ConflictCapacityExceeded}, conflictKinds(validated.Conflicts))
	assert.Equal(t, generated.Schedule, validated.Schedule)

	fx.catalogue.rooms[0].Capacity = 60
	visited, err := fx.service.RevalidateReferencing(context.Background(), repository.EntryReferenceRoom, "r1")
	require.NoError(t, err)
	assert.Equal(t, 1, visited)
	stored, err := fx.service.Get(context.Background(), generated.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Conflicts)
}

func TestTimetableServiceDelete(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)

	require.NoError(t, fx.service.Delete(context.Background(), generated.ID))

	_, err := fx.service.Get(context.Background(), generated.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	err = fx.service.Delete(context.Background(), generated.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceListAttachesSchedules(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)

	list, err := fx.service.List(context.Background(), models.TimetableFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, generated.ID, list[0].ID)
	assert.Len(t, list[0].Schedule, 1)

	empty, err := fx.service.List(context.Background(), models.TimetableFilter{Semester: 9})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestTimetableServiceGrid(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{}, nil)

	grid := fx.service.Grid()
	assert.Len(t, grid.Days, 5)
	require.Len(t, grid.Slots, 7)
	assert.Equal(t, "11:15", grid.Slots[2].Start)
	assert.Equal(t, "16:30-17:30", grid.Slots[6].Label)
}

func TestTimetableServiceGenerateBusyEngineReturnsUnavailable(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)

	for i := 0; i < cap(fx.service.solveSlots); i++ {
		fx.service.solveSlots <- struct{}{}
	}

	done := make(chan error, 2)
	go func() {
		_, err := fx.service.Generate(context.Background(), dto.GenerateTimetableRequest{Department: "CS", Semester: 3, AcademicYear: 2026})
		done <- err
		_, err = fx.service.Regenerate(context.Background(), generated.ID)
		done <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			require.Error(t, err)
			appErr := appErrors.FromError(err)
			assert.Equal(t, appErrors.ErrUnavailable.Code, appErr.Code)
			assert.Equal(t, 503, appErr.Status)
		case <-time.After(time.Second):
			t.Fatal("solve waited for a free engine slot")
		}
	}
	assert.Len(t, fx.timetables.rows, 1)

	<-fx.service.solveSlots
	_, err := fx.service.Regenerate(context.Background(), generated.ID)
	assert.NoError(t, err)
}

func TestTimetableServiceValidateKeepsSolverReasons(t *testing.T) {
	other := csFaculty("f1")
	other.Specialization = models.StringList{"History"}
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1)},
		faculty: []models.Faculty{other},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)
	require.Len(t, generated.Conflicts, 1)
	assert.Contains(t, generated.Conflicts[0].Message, ": no qualified faculty")
	assert.Equal(t, "no qualified faculty", generated.Conflicts[0].Reason)

	validated, err := fx.service.Validate(context.Background(), generated.ID)
	require.NoError(t, err)
	require.Len(t, validated.Conflicts, 1)
	assert.Equal(t, generated.Conflicts[0], validated.Conflicts[0])

	_, err = fx.service.Validate(context.Background(), generated.ID)
	require.NoError(t, err)
	stored, err := fx.service.Get(context.Background(), generated.ID)
	require.NoError(t, err)
	require.Len(t, stored.Conflicts, 1)
	assert.Contains(t, stored.Conflicts[0].Message, ": no qualified faculty")
}

// pausingTimetableStore holds the first FindByID after reading the row until
// resume is closed.
type pausingTimetableStore struct {
	*timetableStoreStub
	calls   int32
	reading chan struct{}
	resume  chan struct{}
}

func (s *pausingTimetableStore) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	row, err := s.timetableStoreStub.FindByID(ctx, id)
	if atomic.AddInt32(&s.calls, 1) == 1 {
		close(s.reading)
		<-s.resume
	}
	return row, err
}

func TestTimetableServiceGetDoesNotCacheRowReadBeforeUpdate(t *testing.T) {
	fx := newTimetableFixture(t, &catalogueStub{
		courses: []models.Course{csCourse("c1", "CS201", 1)},
		faculty: []models.Faculty{csFaculty("f1")},
		rooms:   []models.Room{lectureRoom("r1", 60)},
	}, nil)
	generated := generateCS(t, fx)

	repo := &cacheRepoStub{values: map[string]interface{}{}}
	store := &pausingTimetableStore{timetableStoreStub: fx.timetables, reading: make(chan struct{}), resume: make(chan struct{})}
	fx.service.cache = NewCacheService(repo, nil, 0, nil, true)
	fx.service.timetables = store

	stale := make(chan *models.Timetable, 1)
	go func() {
		timetable, err := fx.service.Get(context.Background(), generated.ID)
		assert.NoError(t, err)
		stale <- timetable
	}()
	<-store.reading

	updated, err := fx.service.Update(context.Background(), generated.ID, dto.UpdateTimetableRequest{Name: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	close(store.resume)
	assert.Equal(t, "CS S3 2026", (<-stale).Name)
	_, cached := repo.values[TimetableCacheKey(generated.ID)]
	assert.False(t, cached)

	fresh, err := fx.service.Get(context.Background(), generated.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fresh.Name)
	_, cached = repo.values[TimetableCacheKey(generated.ID)]
	assert.True(t, cached)
}
