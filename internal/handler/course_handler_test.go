package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-scheduler-api/internal/dto"
	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
)

type courseManagerMock struct {
	filter  models.CourseFilter
	created dto.CourseRequest
	err     error
}

func (m *courseManagerMock) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	m.filter = filter
	return []models.Course{}, m.err
}

func (m *courseManagerMock) Get(ctx context.Context, id string) (*models.Course, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Course{ID: id, Code: "CS201"}, nil
}

func (m *courseManagerMock) Create(ctx context.Context, req dto.CourseRequest) (*models.Course, error) {
	m.created = req
	if m.err != nil {
		return nil, m.err
	}
	return &models.Course{ID: "c-new", Code: req.Code, Prerequisites: models.StringList(req.Prerequisites)}, nil
}

func (m *courseManagerMock) Update(ctx context.Context, id string, req dto.CourseRequest) (*models.Course, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.Course{ID: id, Code: req.Code}, nil
}

func (m *courseManagerMock) Delete(ctx context.Context, id string) error {
	return m.err
}

func TestCourseListEmptyArray(t *testing.T) {
	mockSvc := &courseManagerMock{}
	router := newTimetableRouter(&timetableManagerMock{}, &exporterMock{})
	router.GET("/courses-only", (&CourseHandler{service: mockSvc}).List)

	w := perform(router, http.MethodGet, "/courses-only?department=CS&semester=x&type=LAB", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
	assert.Equal(t, models.CourseFilter{Department: "CS", Type: models.CourseTypeLab}, mockSvc.filter)
}

func TestCourseCreate(t *testing.T) {
	mockSvc := &courseManagerMock{}
	router := newTimetableRouter(&timetableManagerMock{}, &exporterMock{})
	router.POST("/courses-only", (&CourseHandler{service: mockSvc}).Create)

	w := perform(router, http.MethodPost, "/courses-only", []byte(`{"code":"CS201","name":"Data Structures","department":"CS","type":"lecture","hoursPerWeek":3,"semester":3,"prerequisites":["CS101"]}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"CS101"}, mockSvc.created.Prerequisites)

	var course models.Course
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &course))
	assert.Equal(t, "c-new", course.ID)
}

func TestCourseErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"conflict", appErrors.Clone(appErrors.ErrConflict, "course CS101 is a prerequisite of CS201"), http.StatusConflict},
		{"cycle", appErrors.Clone(appErrors.ErrDataInconsistency, "prerequisite cycle"), http.StatusUnprocessableEntity},
		{"missing", appErrors.Clone(appErrors.ErrNotFound, "course not found"), http.StatusNotFound},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := &CourseHandler{service: &courseManagerMock{err: tc.err}}
			router := newTimetableRouter(&timetableManagerMock{}, &exporterMock{})
			router.DELETE("/courses-only/:id", handler.Delete)

			w := perform(router, http.MethodDelete, "/courses-only/c1", nil)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), `"error"`)
		})
	}
}

func TestCatalogueRoutesRegistered(t *testing.T) {
	router := newTimetableRouter(&timetableManagerMock{}, &exporterMock{})

	registered := map[string]bool{}
	for _, route := range router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /api/courses", "POST /api/courses", "PUT /api/courses/:id", "DELETE /api/courses/:id",
		"GET /api/faculty/:id", "POST /api/rooms", "POST /api/timetables/generate",
		"POST /api/timetables/:id/regenerate", "GET /api/timetables/:id/export", "GET /api/grid",
	} {
		assert.True(t, registered[want], want)
	}
}

func TestNewHandlersAcceptServices(t *testing.T) {
	assert.NotNil(t, NewCourseHandler(&service.CourseService{}))
	assert.NotNil(t, NewFacultyHandler(&service.FacultyService{}))
	assert.NotNil(t, NewRoomHandler(&service.RoomService{}))
}
