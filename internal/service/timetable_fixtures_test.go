package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/repository"
	"github.com/noah-isme/timetable-scheduler-api/internal/scheduler"
)

type timetableStoreStub struct {
	mu   sync.Mutex
	rows map[string]models.Timetable
}

func newTimetableStoreStub() *timetableStoreStub {
	return &timetableStoreStub{rows: map[string]models.Timetable{}}
}

func (s *timetableStoreStub) Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := *timetable
	row.Schedule = nil
	s.rows[row.ID] = row
	return nil
}

func (s *timetableStoreStub) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Timetable
	for _, row := range s.rows {
		if filter.Semester > 0 && row.Semester != filter.Semester {
			continue
		}
		if filter.Year > 0 && row.Year != filter.Year {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *timetableStoreStub) FindByID(ctx context.Context, id string) (*models.Timetable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	row.Conflicts = append(models.ConflictList(nil), row.Conflicts...)
	return &row, nil
}

func (s *timetableStoreStub) Update(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[timetable.ID]; !ok {
		return sql.ErrNoRows
	}
	row := *timetable
	row.Schedule = nil
	row.Conflicts = append(models.ConflictList(nil), timetable.Conflicts...)
	s.rows[row.ID] = row
	return nil
}

func (s *timetableStoreStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.rows, id)
	return nil
}

type entryStoreStub struct {
	mu          sync.Mutex
	byTimetable map[string][]models.ScheduleEntry
	replaced    int
}

func newEntryStoreStub() *entryStoreStub {
	return &entryStoreStub{byTimetable: map[string][]models.ScheduleEntry{}}
}

func (s *entryStoreStub) ReplaceAll(ctx context.Context, exec sqlx.ExtContext, timetableID string, entries []models.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]models.ScheduleEntry, len(entries))
	for i, e := range entries {
		e.TimeSlot = ""
		stored[i] = e
	}
	s.byTimetable[timetableID] = stored
	s.replaced++
	return nil
}

func (s *entryStoreStub) ListByTimetable(ctx context.Context, timetableID string) ([]models.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ScheduleEntry(nil), s.byTimetable[timetableID]...), nil
}

func (s *entryStoreStub) ListByTimetables(ctx context.Context, ids []string) (map[string][]models.ScheduleEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string][]models.ScheduleEntry{}
	for _, id := range ids {
		if entries, ok := s.byTimetable[id]; ok {
			out[id] = append([]models.ScheduleEntry(nil), entries...)
		}
	}
	return out, nil
}

func (s *entryStoreStub) TimetableIDsReferencing(ctx context.Context, ref repository.EntryReference, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for timetableID, entries := range s.byTimetable {
		for _, e := range entries {
			var value string
			switch ref {
			case repository.EntryReferenceCourse:
				value = e.CourseID
			case repository.EntryReferenceFaculty:
				value = e.FacultyID
			case repository.EntryReferenceRoom:
				value = e.RoomID
			}
			if value == id {
				ids = append(ids, timetableID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type catalogueStub struct {
	mu      sync.Mutex
	courses []models.Course
	faculty []models.Faculty
	rooms   []models.Room
}

type courseListStub struct{ *catalogueStub }
type facultyListStub struct{ *catalogueStub }
type roomListStub struct{ *catalogueStub }

func (s courseListStub) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Course(nil), s.courses...), nil
}

func (s facultyListStub) List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Faculty(nil), s.faculty...), nil
}

func (s roomListStub) List(ctx context.Context, filter models.RoomFilter) ([]models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Room(nil), s.rooms...), nil
}

type countingDetector struct {
	inner conflictDetector
	calls int
}

func (d *countingDetector) Detect(in scheduler.DetectInput) ([]models.Conflict, error) {
	d.calls++
	return d.inner.Detect(in)
}

type timetableFixture struct {
	service    *TimetableService
	timetables *timetableStoreStub
	entries    *entryStoreStub
	catalogue  *catalogueStub
	detector   *countingDetector
}

func newTimetableFixture(t *testing.T, catalogue *catalogueStub, tx txProvider) *timetableFixture {
	t.Helper()
	grid, err := scheduler.NewGrid(
		[]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"},
		[]string{"09:00-10:00", "10:00-11:00", "11:15-12:15", "12:15-13:15", "14:15-15:15", "15:15-16:15", "16:30-17:30"},
	)
	require.NoError(t, err)

	engine := scheduler.NewEngine(grid, scheduler.Options{}, zap.NewNop())
	detector := &countingDetector{inner: scheduler.NewDetector(grid, 30)}
	timetables := newTimetableStoreStub()
	entries := newEntryStoreStub()

	svc := NewTimetableService(timetables, entries,
		courseListStub{catalogue}, facultyListStub{catalogue}, roomListStub{catalogue},
		engine, detector, tx, nil, NewMetricsService(), nil, zap.NewNop(), TimetableConfig{})

	return &timetableFixture{service: svc, timetables: timetables, entries: entries, catalogue: catalogue, detector: detector}
}

func csCourse(id, code string, hours int, prerequisites ...string) models.Course {
	return models.Course{
		ID:            id,
		Code:          code,
		Name:          "Course " + code,
		Department:    "CS",
		Type:          models.CourseTypeLecture,
		HoursPerWeek:  hours,
		Semester:      3,
		Year:          2,
		Prerequisites: prerequisites,
	}
}

func csFaculty(id string) models.Faculty {
	return models.Faculty{ID: id, Name: "Faculty " + id, Department: "CS"}
}

func lectureRoom(id string, capacity int) models.Room {
	return models.Room{ID: id, Name: "Room " + id, Capacity: capacity, Type: models.RoomTypeLectureHall}
}
