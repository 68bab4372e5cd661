package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-scheduler-api/internal/dto"
	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
)

type timetableManagerMock struct {
	generated dto.GenerateTimetableRequest
	updated   dto.UpdateTimetableRequest
	filter    models.TimetableFilter
	deleted   string
	err       error
}

func sampleTimetable(id string) *models.Timetable {
	return &models.Timetable{
		ID:         id,
		Name:       "CS S3 2026",
		Department: "CS",
		Semester:   3,
		Year:       2026,
		Status:     models.TimetableStatusDraft,
		Schedule: []models.ScheduleEntry{
			{CourseID: "c1", FacultyID: "f1", RoomID: "r1", Day: "Monday", StartTime: "09:00", EndTime: "10:00", TimeSlot: "09:00-10:00"},
		},
		Conflicts: models.ConflictList{},
	}
}

func (m *timetableManagerMock) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error) {
	m.filter = filter
	return []models.Timetable{*sampleTimetable("tt-1")}, m.err
}

func (m *timetableManagerMock) Get(ctx context.Context, id string) (*models.Timetable, error) {
	if m.err != nil {
		return nil, m.err
	}
	return sampleTimetable(id), nil
}

func (m *timetableManagerMock) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*models.Timetable, error) {
	m.generated = req
	if m.err != nil {
		return nil, m.err
	}
	return sampleTimetable("tt-new"), nil
}

func (m *timetableManagerMock) Update(ctx context.Context, id string, req dto.UpdateTimetableRequest) (*models.Timetable, error) {
	m.updated = req
	if m.err != nil {
		return nil, m.err
	}
	t := sampleTimetable(id)
	t.Status = req.Status
	return t, nil
}

func (m *timetableManagerMock) Regenerate(ctx context.Context, id string) (*models.Timetable, error) {
	return sampleTimetable(id), m.err
}

func (m *timetableManagerMock) Validate(ctx context.Context, id string) (*models.Timetable, error) {
	return sampleTimetable(id), m.err
}

func (m *timetableManagerMock) Delete(ctx context.Context, id string) error {
	m.deleted = id
	return m.err
}

func (m *timetableManagerMock) Grid() dto.GridResponse {
	return dto.GridResponse{
		Days:  []string{"Monday"},
		Slots: []dto.GridSlot{{Index: 0, Label: "09:00-10:00", Start: "09:00", End: "10:00"}},
	}
}

type exporterMock struct {
	format service.ExportFormat
	from   time.Time
}

func (m *exporterMock) Export(ctx context.Context, id string, format service.ExportFormat, from time.Time) (*service.ExportFile, error) {
	m.format = format
	m.from = from
	return &service.ExportFile{Filename: "CS_S3_2026." + string(format), ContentType: "text/calendar; charset=utf-8", Payload: []byte("BEGIN:VCALENDAR")}, nil
}

func newTimetableRouter(svc timetableManager, exporter timetableExporter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	routes := Routes{
		Courses:    &CourseHandler{service: &courseManagerMock{}},
		Faculty:    &FacultyHandler{},
		Rooms:      &RoomHandler{},
		Timetables: &TimetableHandler{service: svc, exporter: exporter},
	}
	routes.Register(router.Group("/api"))
	return router
}

func perform(router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTimetableGenerateCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &timetableManagerMock{}
	handler := &TimetableHandler{service: mockSvc}
	req, _ := http.NewRequest(http.MethodPost, "/api/timetables/generate", bytes.NewReader([]byte(`{"department":"CS","semester":3,"academicYear":2026}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Generate(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "CS", mockSvc.generated.Department)
	assert.Equal(t, 2026, mockSvc.generated.AcademicYear)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "tt-new", body["_id"])
	assert.Equal(t, "draft", body["status"])
	assert.NotContains(t, body, "data")
}

func TestTimetableGenerateMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := &TimetableHandler{service: &timetableManagerMock{}}
	req, _ := http.NewRequest(http.MethodPost, "/api/timetables/generate", bytes.NewReader([]byte(`{"department":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	handler.Generate(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"VALIDATION_ERROR"`)
}

func TestTimetableGenerateDataInconsistency(t *testing.T) {
	mockSvc := &timetableManagerMock{err: appErrors.Clone(appErrors.ErrDataInconsistency, "prerequisite cycle: CS201 -> CS202 -> CS201")}
	router := newTimetableRouter(mockSvc, &exporterMock{})

	w := perform(router, http.MethodPost, "/api/timetables/generate", []byte(`{"department":"CS","semester":3,"academicYear":2026}`))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "DATA_INCONSISTENCY", body.Error.Code)
	assert.Equal(t, 422, body.Error.Status)
}

func TestTimetableListReturnsBareArray(t *testing.T) {
	mockSvc := &timetableManagerMock{}
	router := newTimetableRouter(mockSvc, &exporterMock{})

	w := perform(router, http.MethodGet, "/api/timetables?department=CS&semester=3&year=2026&status=Published", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Timetable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "09:00-10:00", list[0].Schedule[0].TimeSlot)
	assert.Equal(t, models.TimetableFilter{Department: "CS", Semester: 3, Year: 2026, Status: models.TimetableStatusPublished}, mockSvc.filter)
}

func TestTimetableUpdateAndDelete(t *testing.T) {
	mockSvc := &timetableManagerMock{}
	router := newTimetableRouter(mockSvc, &exporterMock{})

	w := perform(router, http.MethodPut, "/api/timetables/tt-1", []byte(`{"name":"CS S3 2026","status":"published","schedule":[{"courseId":"c1","facultyId":"f1","roomId":"r1","day":"Monday","startTime":"09:00","endTime":"10:00","timeSlot":"09:00-10:00"}]}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.TimetableStatusPublished, mockSvc.updated.Status)
	require.Len(t, mockSvc.updated.Schedule, 1)
	assert.Equal(t, "c1", mockSvc.updated.Schedule[0].CourseID)

	w = perform(router, http.MethodDelete, "/api/timetables/tt-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "tt-1", mockSvc.deleted)
}

func TestTimetableNotFound(t *testing.T) {
	mockSvc := &timetableManagerMock{err: appErrors.Clone(appErrors.ErrNotFound, "timetable not found")}
	router := newTimetableRouter(mockSvc, &exporterMock{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/timetables/missing"},
		{http.MethodPost, "/api/timetables/missing/regenerate"},
		{http.MethodPost, "/api/timetables/missing/validate"},
		{http.MethodDelete, "/api/timetables/missing"},
	} {
		w := perform(router, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, "%s %s", tc.method, tc.path)
		assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
	}
}

func TestTimetableInternalErrorEnvelope(t *testing.T) {
	router := newTimetableRouter(&timetableManagerMock{err: errors.New("db down")}, &exporterMock{})

	w := perform(router, http.MethodGet, "/api/timetables/tt-1", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INTERNAL_ERROR"`)
}

func TestTimetableExport(t *testing.T) {
	exporter := &exporterMock{}
	router := newTimetableRouter(&timetableManagerMock{}, exporter)

	w := perform(router, http.MethodGet, "/api/timetables/tt-1/export?format=ICS&from=2026-10-19", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportFormatICS, exporter.format)
	assert.Equal(t, time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC), exporter.from)
	assert.Equal(t, `attachment; filename="CS_S3_2026.ics"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "BEGIN:VCALENDAR", w.Body.String())

	w = perform(router, http.MethodGet, "/api/timetables/tt-1/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(router, http.MethodGet, "/api/timetables/tt-1/export?from=19-10-2026", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGridEndpoint(t *testing.T) {
	router := newTimetableRouter(&timetableManagerMock{}, &exporterMock{})

	w := perform(router, http.MethodGet, "/api/grid", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"days":["Monday"],"slots":[{"index":0,"label":"09:00-10:00","start":"09:00","end":"10:00"}]}`, w.Body.String())
}
