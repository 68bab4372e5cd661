package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-scheduler-api/internal/dto"
	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/service"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
	"github.com/noah-isme/timetable-scheduler-api/pkg/response"
)

type facultyManager interface {
	List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error)
	Get(ctx context.Context, id string) (*models.Faculty, error)
	Create(ctx context.Context, req dto.FacultyRequest) (*models.Faculty, error)
	Update(ctx context.Context, id string, req dto.FacultyRequest) (*models.Faculty, error)
	Delete(ctx context.Context, id string) error
}

// FacultyHandler exposes teaching staff records.
type FacultyHandler struct {
	service facultyManager
}

// NewFacultyHandler constructs the handler.
func NewFacultyHandler(svc *service.FacultyService) *FacultyHandler {
	return &FacultyHandler{service: svc}
}

// List godoc
// @Summary List faculty
// @Tags Faculty
// @Produce json
// @Param department query string false "Department"
// @Param search query string false "Search by name or email"
// @Success 200 {array} models.Faculty
// @Router /faculty [get]
func (h *FacultyHandler) List(c *gin.Context) {
	filter := models.FacultyFilter{
		Department: strings.TrimSpace(c.Query("department")),
		Search:     strings.TrimSpace(c.Query("search")),
	}
	faculty, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty)
}

// Get godoc
// @Summary Get faculty member
// @Tags Faculty
// @Produce json
// @Param id path string true "Faculty ID"
// @Success 200 {object} models.Faculty
// @Router /faculty/{id} [get]
func (h *FacultyHandler) Get(c *gin.Context) {
	faculty, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty)
}

// Create godoc
// @Summary Create faculty member
// @Tags Faculty
// @Accept json
// @Produce json
// @Param payload body dto.FacultyRequest true "Faculty payload"
// @Success 201 {object} models.Faculty
// @Router /faculty [post]
func (h *FacultyHandler) Create(c *gin.Context) {
	var req dto.FacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid faculty payload"))
		return
	}
	faculty, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, faculty)
}

// Update godoc
// @Summary Update faculty member
// @Tags Faculty
// @Accept json
// @Produce json
// @Param id path string true "Faculty ID"
// @Param payload body dto.FacultyRequest true "Faculty payload"
// @Success 200 {object} models.Faculty
// @Router /faculty/{id} [put]
func (h *FacultyHandler) Update(c *gin.Context) {
	var req dto.FacultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid faculty payload"))
		return
	}
	faculty, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, faculty)
}

// Delete godoc
// @Summary Delete faculty member
// @Tags Faculty
// @Param id path string true "Faculty ID"
// @Success 200
// @Router /faculty/{id} [delete]
func (h *FacultyHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Empty(c)
}
