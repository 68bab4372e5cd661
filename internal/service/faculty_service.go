package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-scheduler-api/internal/dto"
	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
)

type facultyRepository interface {
	List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error)
	FindByID(ctx context.Context, id string) (*models.Faculty, error)
	Create(ctx context.Context, faculty *models.Faculty) error
	Update(ctx context.Context, faculty *models.Faculty) error
	Delete(ctx context.Context, id string) error
}

// FacultyService manages teaching staff records.
type FacultyService struct {
	repo       facultyRepository
	references referenceFinder
	notifier   revalidationNotifier
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewFacultyService constructs a FacultyService.
func NewFacultyService(repo facultyRepository, references referenceFinder, notifier revalidationNotifier, validate *validator.Validate, logger *zap.Logger) *FacultyService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacultyService{repo: repo, references: references, notifier: notifier, validator: validate, logger: logger}
}

// List returns faculty ordered by name.
func (s *FacultyService) List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error) {
	faculty, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list faculty")
	}
	if faculty == nil {
		faculty = []models.Faculty{}
	}
	return faculty, nil
}

// Get returns a faculty member by id.
func (s *FacultyService) Get(ctx context.Context, id string) (*models.Faculty, error) {
	faculty, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load faculty")
	}
	return faculty, nil
}

// Create registers a faculty member.
func (s *FacultyService) Create(ctx context.Context, req dto.FacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	faculty := &models.Faculty{}
	if err := applyFacultyRequest(faculty, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, faculty); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create faculty")
	}
	return faculty, nil
}

// Update replaces a faculty record and queues revalidation of timetables using it.
func (s *FacultyService) Update(ctx context.Context, id string, req dto.FacultyRequest) (*models.Faculty, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid faculty payload")
	}
	faculty, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyFacultyRequest(faculty, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, faculty); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update faculty")
	}
	if s.notifier != nil {
		s.notifier.Notify(repository.EntryReferenceFaculty, id)
	}
	return faculty, nil
}

// Delete removes a faculty member no timetable schedules.
func (s *FacultyService) Delete(ctx context.Context, id string) error {
	faculty, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := ensureUnreferenced(ctx, s.references, repository.EntryReferenceFaculty, id, "faculty "+faculty.Name); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "faculty not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete faculty")
	}
	return nil
}

func applyFacultyRequest(faculty *models.Faculty, req dto.FacultyRequest) error {
	availability, err := normalizeAvailability(req.Availability)
	if err != nil {
		return err
	}
	faculty.Name = strings.TrimSpace(req.Name)
	faculty.Email = strings.TrimSpace(req.Email)
	faculty.Department = strings.TrimSpace(req.Department)
	faculty.Designation = strings.TrimSpace(req.Designation)
	faculty.Specialization = normalizeTags(req.Specialization)
	faculty.MaxHoursPerWeek = req.MaxHoursPerWeek
	faculty.Availability = availability
	faculty.Preferences = models.Preferences{
		PreferredTimeSlots: normalizeTags(req.Preferences.PreferredTimeSlots),
		AvoidTimeSlots:     normalizeTags(req.Preferences.AvoidTimeSlots),
	}
	return nil
}
