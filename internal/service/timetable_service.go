package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/timetable-scheduler-api/internal/dto"
	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/repository"
	"github.com/noah-isme/timetable-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
)

type timetableRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error)
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
	Update(ctx context.Context, exec sqlx.ExtContext, timetable *models.Timetable) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type timetableEntryRepository interface {
	ReplaceAll(ctx context.Context, exec sqlx.ExtContext, timetableID string, entries []models.ScheduleEntry) error
	ListByTimetable(ctx context.Context, timetableID string) ([]models.ScheduleEntry, error)
	ListByTimetables(ctx context.Context, timetableIDs []string) (map[string][]models.ScheduleEntry, error)
	TimetableIDsReferencing(ctx context.Context, ref repository.EntryReference, id string) ([]string, error)
}

type courseLister interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
}

type facultyLister interface {
	List(ctx context.Context, filter models.FacultyFilter) ([]models.Faculty, error)
}

type roomLister interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, error)
}

type timetableSolver interface {
	Solve(ctx context.Context, p scheduler.Problem) *scheduler.Result
	Grid() *scheduler.Grid
	Options() scheduler.Options
}

type conflictDetector interface {
	Detect(in scheduler.DetectInput) ([]models.Conflict, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// TimetableConfig governs solve limits.
type TimetableConfig struct {
	SolveTimeout        time.Duration
	MaxConcurrentSolves int
}

// TimetableService owns the draft/published lifecycle of timetables.
type TimetableService struct {
	timetables timetableRepository
	entries    timetableEntryRepository
	courses    courseLister
	faculty    facultyLister
	rooms      roomLister
	engine     timetableSolver
	detector   conflictDetector
	tx         txProvider
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        TimetableConfig
	locks      *keyedLock
	cacheGens  *generations
	solveSlots chan struct{}
}

// NewTimetableService wires the lifecycle manager.
func NewTimetableService(
	timetables timetableRepository,
	entries timetableEntryRepository,
	courses courseLister,
	faculty facultyLister,
	rooms roomLister,
	engine timetableSolver,
	detector conflictDetector,
	tx txProvider,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SolveTimeout <= 0 {
		cfg.SolveTimeout = 10 * time.Second
	}
	if cfg.MaxConcurrentSolves <= 0 {
		cfg.MaxConcurrentSolves = 4
	}
	return &TimetableService{
		timetables: timetables,
		entries:    entries,
		courses:    courses,
		faculty:    faculty,
		rooms:      rooms,
		engine:     engine,
		detector:   detector,
		tx:         tx,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
		locks:      newKeyedLock(),
		cacheGens:  newGenerations(),
		solveSlots: make(chan struct{}, cfg.MaxConcurrentSolves),
	}
}

// --- Queries ---

// List returns timetables with their schedules, newest first.
func (s *TimetableService) List(ctx context.Context, filter models.TimetableFilter) ([]models.Timetable, error) {
	timetables, err := s.timetables.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	ids := lo.Map(timetables, func(t models.Timetable, _ int) string { return t.ID })
	schedules, err := s.entries.ListByTimetables(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable schedules")
	}
	for i := range timetables {
		timetables[i].Schedule = schedules[timetables[i].ID]
		decorate(&timetables[i])
	}
	if timetables == nil {
		timetables = []models.Timetable{}
	}
	return timetables, nil
}

// Get returns one timetable, served from cache when enabled.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.Timetable, error) {
	var cached models.Timetable
	if hit, _ := s.cache.Get(ctx, TimetableCacheKey(id), &cached); hit {
		return &cached, nil
	}
	seen := s.cacheGens.current(id)
	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.cache.Enabled() {
		return timetable, nil
	}
	s.cacheGens.fill(id, seen, func() {
		_ = s.cache.Set(ctx, TimetableCacheKey(id), timetable, 0)
	})
	return timetable, nil
}

// Grid describes the configured weekly slot grid.
func (s *TimetableService) Grid() dto.GridResponse {
	grid := s.engine.Grid()
	resp := dto.GridResponse{Days: grid.Days()}
	for i, slot := range grid.Slots() {
		resp.Slots = append(resp.Slots, dto.GridSlot{Index: i, Label: slot.Label, Start: slot.StartText(), End: slot.EndText()})
	}
	return resp
}

// --- Commands ---

// Generate builds and stores a new draft timetable.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}

	timetable := &models.Timetable{
		ID:              uuid.NewString(),
		Name:            strings.TrimSpace(req.Name),
		Department:      strings.TrimSpace(req.Department),
		Semester:        req.Semester,
		Year:            req.AcademicYear,
		ConstraintsText: strings.TrimSpace(req.ConstraintsText),
		Status:          models.TimetableStatusDraft,
	}
	if timetable.Name == "" {
		timetable.Name = fmt.Sprintf("%s S%d %d", timetable.Department, timetable.Semester, timetable.Year)
	}

	if err := s.compose(ctx, "generate", timetable); err != nil {
		return nil, err
	}

	// A partial schedule produced under an expired deadline is still stored.
	persistCtx := context.WithoutCancel(ctx)
	err := s.inTx(persistCtx, func(exec sqlx.ExtContext) error {
		if err := s.timetables.Create(persistCtx, exec, timetable); err != nil {
			return err
		}
		return s.entries.ReplaceAll(persistCtx, exec, timetable.ID, timetable.Schedule)
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable")
	}

	decorate(timetable)
	s.logger.Info("timetable generated",
		zap.String("timetable_id", timetable.ID),
		zap.String("department", timetable.Department),
		zap.Int("semester", timetable.Semester),
		zap.Int("entries", len(timetable.Schedule)),
		zap.Int("conflicts", len(timetable.Conflicts)),
	)
	return timetable, nil
}

// Update applies a full timetable body. The schedule is replaced and conflicts
// recomputed only when the submitted schedule differs from the stored one.
func (s *TimetableService) Update(ctx context.Context, id string, req dto.UpdateTimetableRequest) (*models.Timetable, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(req.Name); name != "" {
		timetable.Name = name
	}
	if req.Status != "" {
		timetable.Status = req.Status
	}
	if req.ConstraintsText != nil {
		timetable.ConstraintsText = strings.TrimSpace(*req.ConstraintsText)
	}

	replace := false
	if submitted := req.Entries(); submitted != nil {
		submitted = s.canonicalize(submitted)
		if !sameSchedule(timetable.Schedule, submitted) {
			conflicts, err := s.detect(ctx, timetable, submitted, nil)
			if err != nil {
				return nil, err
			}
			timetable.Schedule = submitted
			timetable.Conflicts = conflicts
			replace = true
		}
	}

	err = s.inTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.timetables.Update(ctx, exec, timetable); err != nil {
			return err
		}
		if replace {
			return s.entries.ReplaceAll(ctx, exec, timetable.ID, timetable.Schedule)
		}
		return nil
	})
	if err != nil {
		return nil, s.storeError(err, "failed to update timetable")
	}

	s.evict(ctx, id)
	decorate(timetable)
	return timetable, nil
}

// Regenerate replaces the schedule and conflicts of an existing timetable
// with a fresh engine run. The status is kept.
func (s *TimetableService) Regenerate(ctx context.Context, id string) (*models.Timetable, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.compose(ctx, "regenerate", timetable); err != nil {
		return nil, err
	}

	persistCtx := context.WithoutCancel(ctx)
	err = s.inTx(persistCtx, func(exec sqlx.ExtContext) error {
		if err := s.timetables.Update(persistCtx, exec, timetable); err != nil {
			return err
		}
		return s.entries.ReplaceAll(persistCtx, exec, timetable.ID, timetable.Schedule)
	})
	if err != nil {
		return nil, s.storeError(err, "failed to store regenerated timetable")
	}

	s.evict(persistCtx, id)
	decorate(timetable)
	return timetable, nil
}

// Validate re-runs the conflict detector on the stored schedule against the
// current catalogue and stores the result.
func (s *TimetableService) Validate(ctx context.Context, id string) (*models.Timetable, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	timetable, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.detect(ctx, timetable, timetable.Schedule, solverReasons(timetable.Conflicts))
	if err != nil {
		return nil, err
	}
	timetable.Conflicts = conflicts
	s.metrics.RecordConflicts(conflicts)

	if err := s.inTx(ctx, func(exec sqlx.ExtContext) error {
		return s.timetables.Update(ctx, exec, timetable)
	}); err != nil {
		return nil, s.storeError(err, "failed to store timetable conflicts")
	}

	s.evict(ctx, id)
	decorate(timetable)
	return timetable, nil
}

// Delete removes a timetable in any status.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.inTx(ctx, func(exec sqlx.ExtContext) error {
		return s.timetables.Delete(ctx, exec, id)
	}); err != nil {
		return s.storeError(err, "failed to delete timetable")
	}
	s.evict(ctx, id)
	s.logger.Info("timetable deleted", zap.String("timetable_id", id))
	return nil
}

// RevalidateReferencing validates every timetable whose schedule uses the
// entity and reports how many were visited.
func (s *TimetableService) RevalidateReferencing(ctx context.Context, ref repository.EntryReference, entityID string) (int, error) {
	ids, err := s.entries.TimetableIDsReferencing(ctx, ref, entityID)
	if err != nil {
		return 0, fmt.Errorf("find timetables referencing %s %s: %w", ref, entityID, err)
	}
	var errs []error
	for _, id := range ids {
		if _, err := s.Validate(ctx, id); err != nil {
			if appErrors.Is(err, appErrors.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("revalidate timetable %s: %w", id, err))
		}
	}
	return len(ids), errors.Join(errs...)
}

// --- Internals ---

type snapshot struct {
	catalogue []models.Course
	faculty   []models.Faculty
	rooms     []models.Room
	reserved  []models.ScheduleEntry
}

// loadSnapshot reads the entity data a solve or detection runs over. With
// reservations it also collects the entries of other published timetables
// for the same semester and year.
func (s *TimetableService) loadSnapshot(ctx context.Context, timetable *models.Timetable, withReservations bool) (*snapshot, error) {
	started := time.Now()
	snap := &snapshot{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		courses, err := s.courses.List(gctx, models.CourseFilter{})
		snap.catalogue = courses
		return err
	})
	g.Go(func() error {
		faculty, err := s.faculty.List(gctx, models.FacultyFilter{})
		snap.faculty = faculty
		return err
	})
	g.Go(func() error {
		rooms, err := s.rooms.List(gctx, models.RoomFilter{})
		snap.rooms = rooms
		return err
	})
	if withReservations {
		g.Go(func() error {
			published, err := s.timetables.List(gctx, models.TimetableFilter{
				Semester: timetable.Semester,
				Year:     timetable.Year,
				Status:   models.TimetableStatusPublished,
			})
			if err != nil {
				return err
			}
			ids := lo.FilterMap(published, func(t models.Timetable, _ int) (string, bool) { return t.ID, t.ID != timetable.ID })
			schedules, err := s.entries.ListByTimetables(gctx, ids)
			if err != nil {
				return err
			}
			for _, id := range ids {
				snap.reserved = append(snap.reserved, schedules[id]...)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load scheduling data")
	}

	s.metrics.ObserveDBQuery("timetable_snapshot", time.Since(started))
	return snap, nil
}

// compose runs the engine and the detector and stores the outcome on timetable.
func (s *TimetableService) compose(ctx context.Context, operation string, timetable *models.Timetable) error {
	snap, err := s.loadSnapshot(ctx, timetable, true)
	if err != nil {
		return err
	}
	if err := scheduler.ValidateCatalogue(snap.catalogue); err != nil {
		return translateSchedulerError(err)
	}
	scope := coursesInScope(snap.catalogue, timetable.Department, timetable.Semester)

	release, err := s.acquireSolveSlot(ctx)
	if err != nil {
		return err
	}
	solveCtx, cancel := context.WithTimeout(ctx, s.cfg.SolveTimeout)
	result := s.engine.Solve(solveCtx, scheduler.Problem{
		Courses:         scope,
		Faculty:         snap.faculty,
		Rooms:           snap.rooms,
		ConstraintsText: timetable.ConstraintsText,
		Reserved:        snap.reserved,
	})
	cancel()
	release()

	conflicts, err := s.detector.Detect(scheduler.DetectInput{
		Schedule:  result.Schedule,
		Courses:   scope,
		Catalogue: snap.catalogue,
		Faculty:   snap.faculty,
		Rooms:     snap.rooms,
		Reasons:   result.Reasons,
	})
	if err != nil {
		return translateSchedulerError(err)
	}

	unplaced := lo.SumBy(result.Unplaced, func(u scheduler.Unplaced) int { return u.Hours })
	s.metrics.ObserveSolve(operation, string(s.engine.Options().Mode), result.Duration, unplaced, result.DeadlineExceeded)
	s.metrics.RecordConflicts(conflicts)
	if len(result.IgnoredHints) > 0 {
		s.logger.Info("constraint hints not understood",
			zap.String("timetable_id", timetable.ID),
			zap.Strings("hints", result.IgnoredHints),
		)
	}

	timetable.Schedule = result.Schedule
	timetable.Conflicts = conflicts
	return nil
}

// detect checks entries against the current catalogue without solving.
// reasons carries explanations for courses the solver left short.
func (s *TimetableService) detect(ctx context.Context, timetable *models.Timetable, entries []models.ScheduleEntry, reasons map[string]string) ([]models.Conflict, error) {
	snap, err := s.loadSnapshot(ctx, timetable, false)
	if err != nil {
		return nil, err
	}
	if err := scheduler.ValidateCatalogue(snap.catalogue); err != nil {
		return nil, translateSchedulerError(err)
	}
	conflicts, err := s.detector.Detect(scheduler.DetectInput{
		Schedule:  entries,
		Courses:   coursesInScope(snap.catalogue, timetable.Department, timetable.Semester),
		Catalogue: snap.catalogue,
		Faculty:   snap.faculty,
		Rooms:     snap.rooms,
		Reasons:   reasons,
	})
	if err != nil {
		return nil, translateSchedulerError(err)
	}
	return conflicts, nil
}

// solverReasons recovers the explanations recorded on unassigned courses.
func solverReasons(conflicts []models.Conflict) map[string]string {
	reasons := map[string]string{}
	for _, c := range conflicts {
		if c.Type != models.ConflictUnassignedCourse || c.Reason == "" {
			continue
		}
		for _, id := range c.References.CourseIDs {
			reasons[id] = c.Reason
		}
	}
	return reasons
}

func (s *TimetableService) load(ctx context.Context, id string) (*models.Timetable, error) {
	timetable, err := s.timetables.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	schedule, err := s.entries.ListByTimetable(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable schedule")
	}
	timetable.Schedule = schedule
	decorate(timetable)
	return timetable, nil
}

// acquireSolveSlot never waits: a saturated engine answers SERVICE_UNAVAILABLE
// so callers can retry instead of holding a request and a timetable lock.
func (s *TimetableService) acquireSolveSlot(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "timetable request cancelled")
	}
	select {
	case s.solveSlots <- struct{}{}:
		return func() { <-s.solveSlots }, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "timetable engine is busy, retry shortly")
	}
}

func (s *TimetableService) inTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) (err error) {
	if s.tx == nil {
		return fn(nil)
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *TimetableService) storeError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *TimetableService) evict(ctx context.Context, id string) {
	s.cacheGens.bump(id, func() {
		_ = s.cache.Evict(ctx, TimetableCacheKey(id))
	})
}

// canonicalize rewrites recognised day names to the grid's spelling.
func (s *TimetableService) canonicalize(entries []models.ScheduleEntry) []models.ScheduleEntry {
	grid := s.engine.Grid()
	out := make([]models.ScheduleEntry, len(entries))
	for i, e := range entries {
		e.CourseID = strings.TrimSpace(e.CourseID)
		e.FacultyID = strings.TrimSpace(e.FacultyID)
		e.RoomID = strings.TrimSpace(e.RoomID)
		e.StartTime = strings.TrimSpace(e.StartTime)
		e.EndTime = strings.TrimSpace(e.EndTime)
		if day, ok := grid.DayIndex(e.Day); ok {
			e.Day = grid.DayName(day)
		}
		e.TimeSlot = ""
		out[i] = e
	}
	return out
}

func coursesInScope(catalogue []models.Course, department string, semester int) []models.Course {
	department = strings.TrimSpace(department)
	return lo.Filter(catalogue, func(c models.Course, _ int) bool {
		return c.Semester == semester && strings.EqualFold(strings.TrimSpace(c.Department), department)
	})
}

func sameSchedule(stored, submitted []models.ScheduleEntry) bool {
	if len(stored) != len(submitted) {
		return false
	}
	for i := range stored {
		a, b := stored[i], submitted[i]
		a.TimeSlot, b.TimeSlot = "", ""
		if a != b {
			return false
		}
	}
	return true
}

// decorate fills derived fields so every response has the same shape.
func decorate(t *models.Timetable) {
	if t.Schedule == nil {
		t.Schedule = []models.ScheduleEntry{}
	}
	if t.Conflicts == nil {
		t.Conflicts = models.ConflictList{}
	}
	for i := range t.Schedule {
		t.Schedule[i].TimeSlot = t.Schedule[i].StartTime + "-" + t.Schedule[i].EndTime
	}
}

func translateSchedulerError(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrPrerequisiteCycle), errors.Is(err, scheduler.ErrUnknownReference):
		return appErrors.Wrap(err, appErrors.ErrDataInconsistency.Code, appErrors.ErrDataInconsistency.Status, err.Error())
	case errors.Is(err, scheduler.ErrInvalidEntry):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable engine failed")
	}
}
