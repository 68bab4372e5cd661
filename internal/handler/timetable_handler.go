package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-scheduler-api/internal/dto"
	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
	"github.com/noah-isme/timetable-scheduler-api/pkg/response"
)

type timetableManager interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error)
	Get(ctx context.Context, id string) (*models.Timetable, error)
	Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*models.Timetable, error)
	Update(ctx context.Context, id string, req dto.UpdateTimetableRequest) (*models.Timetable, error)
	Regenerate(ctx context.Context, id string) (*models.Timetable, error)
	Validate(ctx context.Context, id string) (*models.Timetable, error)
	Delete(ctx context.Context, id string) error
	Grid() dto.GridResponse
}

type timetableExporter interface {
	Export(ctx context.Context, id string, format service.ExportFormat, from time.Time) (*service.ExportFile, error)
}

// TimetableHandler exposes generation, editing and export of timetables.
type TimetableHandler struct {
	service  timetableManager
	exporter timetableExporter
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(svc *service.TimetableService, exporter *service.ExportService) *TimetableHandler {
	return &TimetableHandler{service: svc, exporter: exporter}
}

// Generate godoc
// @Summary Generate a draft timetable
// @Description Runs the engine over the courses of one department and semester. Courses the engine could not place are reported as unassigned_course conflicts.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Generation payload"
// @Success 201 {object} models.Timetable
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid generation payload"))
		return
	}
	timetable, err := h.service.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, timetable)
}

// List godoc
// @Summary List timetables
// @Tags Timetables
// @Produce json
// @Param department query string false "Department"
// @Param semester query int false "Semester"
// @Param year query int false "Academic year"
// @Param status query string false "draft or published"
// @Success 200 {array} models.Timetable
// @Router /timetables [get]
func (h *TimetableHandler) List(c *gin.Context) {
	filter := models.TimetableFilter{
		Department: strings.TrimSpace(c.Query("department")),
		Semester:   queryInt(c, "semester"),
		Year:       queryInt(c, "year", "academicYear"),
		Status:     models.TimetableStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
	}
	timetables, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetables)
}

// Get godoc
// @Summary Get timetable
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} models.Timetable
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [get]
func (h *TimetableHandler) Get(c *gin.Context) {
	timetable, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable)
}

// Update godoc
// @Summary Update timetable
// @Description Accepts the full timetable body. A changed schedule is stored as a manual edit and its conflicts recomputed; an unchanged schedule leaves conflicts untouched.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param id path string true "Timetable ID"
// @Param payload body dto.UpdateTimetableRequest true "Timetable body"
// @Success 200 {object} models.Timetable
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [put]
func (h *TimetableHandler) Update(c *gin.Context) {
	var req dto.UpdateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return
	}
	timetable, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable)
}

// Delete godoc
// @Summary Delete timetable
// @Tags Timetables
// @Param id path string true "Timetable ID"
// @Success 200
// @Failure 404 {object} response.Envelope
// @Router /timetables/{id} [delete]
func (h *TimetableHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Empty(c)
}

// Regenerate godoc
// @Summary Regenerate timetable
// @Description Replaces schedule and conflicts with a fresh engine run. The status is kept.
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} models.Timetable
// @Router /timetables/{id}/regenerate [post]
func (h *TimetableHandler) Regenerate(c *gin.Context) {
	timetable, err := h.service.Regenerate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable)
}

// Validate godoc
// @Summary Recompute conflicts
// @Tags Timetables
// @Produce json
// @Param id path string true "Timetable ID"
// @Success 200 {object} models.Timetable
// @Router /timetables/{id}/validate [post]
func (h *TimetableHandler) Validate(c *gin.Context) {
	timetable, err := h.service.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable)
}

// Export godoc
// @Summary Download timetable
// @Tags Timetables
// @Produce text/csv
// @Produce application/pdf
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/calendar
// @Param id path string true "Timetable ID"
// @Param format query string false "csv, pdf, xlsx or ics" default(csv)
// @Param from query string false "First week of calendar exports (YYYY-MM-DD)"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /timetables/{id}/export [get]
func (h *TimetableHandler) Export(c *gin.Context) {
	format, err := service.ParseExportFormat(c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	var from time.Time
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err = time.Parse("2006-01-02", raw)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "from must be YYYY-MM-DD"))
			return
		}
	}
	file, err := h.exporter.Export(c.Request.Context(), c.Param("id"), format, from)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Payload)
}

// Grid godoc
// @Summary Configured slot grid
// @Tags Timetables
// @Produce json
// @Success 200 {object} dto.GridResponse
// @Router /grid [get]
func (h *TimetableHandler) Grid(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Grid())
}
