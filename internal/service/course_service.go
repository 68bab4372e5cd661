package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-scheduler-api/internal/dto"
	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/repository"
	"github.com/noah-isme/timetable-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByCode(ctx context.Context, code, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

// CourseService manages the course catalogue.
type CourseService struct {
	repo       courseRepository
	references referenceFinder
	notifier   revalidationNotifier
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(repo courseRepository, references referenceFinder, notifier revalidationNotifier, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, references: references, notifier: notifier, validator: validate, logger: logger}
}

// List returns courses ordered by code.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a course after checking the prerequisite graph stays acyclic.
func (s *CourseService) Create(ctx context.Context, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course := &models.Course{}
	applyCourseRequest(course, req)

	if err := s.ensureUniqueCode(ctx, course.Code, ""); err != nil {
		return nil, err
	}
	if err := s.ensureConsistentCatalogue(ctx, *course); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// Update replaces a course and queues revalidation of timetables using it.
func (s *CourseService) Update(ctx context.Context, id string, req dto.CourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousCode := course.Code
	applyCourseRequest(course, req)

	if err := s.ensureUniqueCode(ctx, course.Code, id); err != nil {
		return nil, err
	}
	if !strings.EqualFold(previousCode, course.Code) {
		if err := s.ensureNotPrerequisite(ctx, previousCode, id); err != nil {
			return nil, err
		}
	}
	if err := s.ensureConsistentCatalogue(ctx, *course); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	if s.notifier != nil {
		s.notifier.Notify(repository.EntryReferenceCourse, id)
	}
	return course, nil
}

// Delete removes a course that no timetable or other course depends on.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	course, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ensureNotPrerequisite(ctx, course.Code, id); err != nil {
		return err
	}
	if err := ensureUnreferenced(ctx, s.references, repository.EntryReferenceCourse, id, "course "+course.Code); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

func (s *CourseService) ensureUniqueCode(ctx context.Context, code, excludeID string) error {
	exists, err := s.repo.ExistsByCode(ctx, code, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course code %s already used", code))
	}
	return nil
}

// ensureConsistentCatalogue validates the catalogue as it would look with candidate saved.
func (s *CourseService) ensureConsistentCatalogue(ctx context.Context, candidate models.Course) error {
	catalogue, err := s.repo.List(ctx, models.CourseFilter{})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course catalogue")
	}
	catalogue = lo.Reject(catalogue, func(c models.Course, _ int) bool { return candidate.ID != "" && c.ID == candidate.ID })
	catalogue = append(catalogue, candidate)
	if err := scheduler.ValidateCatalogue(catalogue); err != nil {
		return translateSchedulerError(err)
	}
	return nil
}

func (s *CourseService) ensureNotPrerequisite(ctx context.Context, code, id string) error {
	catalogue, err := s.repo.List(ctx, models.CourseFilter{})
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course catalogue")
	}
	dependents := lo.FilterMap(catalogue, func(c models.Course, _ int) (string, bool) {
		if c.ID == id {
			return "", false
		}
		return c.Code, lo.ContainsBy(c.Prerequisites, func(p string) bool { return strings.EqualFold(strings.TrimSpace(p), code) })
	})
	if len(dependents) > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course %s is a prerequisite of %s", code, strings.Join(dependents, ", ")))
	}
	return nil
}

func applyCourseRequest(course *models.Course, req dto.CourseRequest) {
	course.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	course.Name = strings.TrimSpace(req.Name)
	course.Department = strings.TrimSpace(req.Department)
	course.Credits = req.Credits
	course.Type = req.Type
	course.HoursPerWeek = req.HoursPerWeek
	course.Semester = req.Semester
	course.Year = req.Year
	course.Prerequisites = models.StringList(lo.Map(normalizeTags(req.Prerequisites), func(code string, _ int) string { return strings.ToUpper(code) }))
	course.ExpectedEnrollment = req.ExpectedEnrollment
	course.RequiredEquipment = normalizeTags(req.RequiredEquipment)
}
