package scheduler

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

// Mode selects how far the search may reopen committed assignments.
type Mode string

const (
	ModeGreedy     Mode = "greedy"
	ModeExhaustive Mode = "exhaustive"
)

// CapacityPolicy decides what happens when no room is large enough.
type CapacityPolicy string

const (
	// CapacityStrict never seats a course in an undersized room.
	CapacityStrict CapacityPolicy = "strict"
	// CapacityFlag falls back to the largest compatible room and lets the detector flag it.
	CapacityFlag CapacityPolicy = "flag"
)

// Options tune a solve.
type Options struct {
	Mode              Mode
	CapacityPolicy    CapacityPolicy
	BacktrackWindow   int
	RetryBudget       int
	DefaultEnrollment int
	ContiguousBlocks  bool
}

func (o Options) withDefaults() Options {
	if o.Mode != ModeExhaustive {
		o.Mode = ModeGreedy
	}
	if o.CapacityPolicy != CapacityFlag {
		o.CapacityPolicy = CapacityStrict
	}
	if o.BacktrackWindow <= 0 {
		o.BacktrackWindow = 8
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = 5000
	}
	if o.DefaultEnrollment <= 0 {
		o.DefaultEnrollment = 30
	}
	return o
}

// Problem is the read-only snapshot a solve runs over.
type Problem struct {
	Courses         []models.Course
	Faculty         []models.Faculty
	Rooms           []models.Room
	ConstraintsText string
	// Reserved holds entries of other published timetables; their faculty
	// and room occupancy is blocked before the search starts.
	Reserved []models.ScheduleEntry
}

// Unplaced describes course-hours the search could not commit.
type Unplaced struct {
	CourseID string
	Hours    int
	Reason   string
}

// Result is the best-effort outcome of a solve.
type Result struct {
	Schedule         []models.ScheduleEntry
	Unplaced         []Unplaced
	Reasons          map[string]string
	IgnoredHints     []string
	Trials           int
	Backtracks       int
	DeadlineExceeded bool
	Duration         time.Duration
}

// Engine assigns (course, faculty, room, slot) tuples over a fixed grid.
type Engine struct {
	grid   *Grid
	opts   Options
	logger *zap.Logger
}

// NewEngine constructs an engine bound to one grid.
func NewEngine(grid *Grid, opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{grid: grid, opts: opts.withDefaults(), logger: logger}
}

// Grid exposes the grid the engine schedules into.
func (e *Engine) Grid() *Grid { return e.grid }

// Options returns the effective options.
func (e *Engine) Options() Options { return e.opts }

// Solve never fails: unplaceable hours are reported in Unplaced, and an
// expired context yields the partial schedule built so far.
func (e *Engine) Solve(ctx context.Context, p Problem) *Result {
	started := time.Now()

	faculty := append([]models.Faculty(nil), p.Faculty...)
	sort.SliceStable(faculty, func(i, j int) bool { return faculty[i].ID < faculty[j].ID })
	rooms := append([]models.Room(nil), p.Rooms...)
	sort.SliceStable(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })

	hints := ParseHints(e.grid, p.ConstraintsText)
	index := NewIndex(e.grid, faculty, rooms)
	courses := e.prepareCourses(p.Courses, faculty, rooms)

	s := newSearch(e.grid, e.opts, index, hints, courses, faculty, rooms)
	s.reserve(p.Reserved)
	s.run(ctx)

	result := &Result{
		Schedule:         s.export(),
		Reasons:          map[string]string{},
		IgnoredHints:     hints.Ignored,
		Trials:           s.trials,
		Backtracks:       s.backtracks,
		DeadlineExceeded: s.expired,
		Duration:         time.Since(started),
	}
	result.Unplaced = s.unplaced()
	for _, u := range result.Unplaced {
		if _, seen := result.Reasons[u.CourseID]; !seen {
			result.Reasons[u.CourseID] = u.Reason
		}
	}

	e.logger.Info("timetable solve finished",
		zap.String("mode", string(e.opts.Mode)),
		zap.Int("courses", len(courses)),
		zap.Int("entries", len(result.Schedule)),
		zap.Int("unplaced_hours", lo.SumBy(result.Unplaced, func(u Unplaced) int { return u.Hours })),
		zap.Int("trials", result.Trials),
		zap.Int("backtracks", result.Backtracks),
		zap.Bool("deadline_exceeded", result.DeadlineExceeded),
		zap.Strings("ignored_hints", result.IgnoredHints),
		zap.Duration("duration", result.Duration),
	)

	return result
}

// courseInfo carries the static candidate sets of one course.
type courseInfo struct {
	course     models.Course
	enrollment int
	faculty    []int
	rooms      []int
	reason     string
}

// prepareCourses computes qualified faculty and suitable rooms, then orders
// courses most-constrained-first.
func (e *Engine) prepareCourses(input []models.Course, faculty []models.Faculty, rooms []models.Room) []courseInfo {
	out := make([]courseInfo, 0, len(input))
	for _, c := range input {
		info := courseInfo{course: c, enrollment: c.ExpectedEnrollment}
		if info.enrollment <= 0 {
			info.enrollment = e.opts.DefaultEnrollment
		}

		for i, f := range faculty {
			if Qualified(f, c) {
				info.faculty = append(info.faculty, i)
			}
		}

		compatible := lo.Filter(lo.Range(len(rooms)), func(i int, _ int) bool { return RoomCompatible(rooms[i], c) })
		fitting := lo.Filter(compatible, func(i int, _ int) bool { return rooms[i].Capacity >= info.enrollment })
		sort.SliceStable(fitting, func(a, b int) bool { return rooms[fitting[a]].Capacity < rooms[fitting[b]].Capacity })
		info.rooms = fitting
		if len(fitting) == 0 && e.opts.CapacityPolicy == CapacityFlag {
			sort.SliceStable(compatible, func(a, b int) bool { return rooms[compatible[a]].Capacity > rooms[compatible[b]].Capacity })
			info.rooms = compatible
		}

		switch {
		case len(info.faculty) == 0:
			info.reason = "no qualified faculty"
		case len(compatible) == 0:
			info.reason = "no room of a compatible type with the required equipment"
		case len(info.rooms) == 0:
			info.reason = "no compatible room seats the expected enrollment"
		case e.opts.ContiguousBlocks && c.HoursPerWeek > e.grid.SlotsPerDay():
			info.reason = "block of weekly hours does not fit in one day"
		}

		out = append(out, info)
	}

	// Most constrained first: more weekly hours, then fewer qualified faculty,
	// then fewer suitable rooms. The option counts sort ascending on purpose.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.course.HoursPerWeek != b.course.HoursPerWeek {
			return a.course.HoursPerWeek > b.course.HoursPerWeek
		}
		if len(a.faculty) != len(b.faculty) {
			return len(a.faculty) < len(b.faculty)
		}
		if len(a.rooms) != len(b.rooms) {
			return len(a.rooms) < len(b.rooms)
		}
		if a.course.Code != b.course.Code {
			return a.course.Code < b.course.Code
		}
		return a.course.ID < b.course.ID
	})
	return out
}

// Qualified reports whether a faculty member may teach the course. A tag
// matches the course code, name or department; untagged faculty teach
// within their own department.
func Qualified(f models.Faculty, c models.Course) bool {
	tags := lo.Filter(f.Specialization, func(tag string, _ int) bool { return strings.TrimSpace(tag) != "" })
	if len(tags) == 0 {
		return sameText(f.Department, c.Department)
	}
	return lo.SomeBy(tags, func(tag string) bool {
		return sameText(tag, c.Code) || sameText(tag, c.Name) || sameText(tag, c.Department)
	})
}

// RoomCompatible checks type and equipment; capacity is handled by policy.
func RoomCompatible(r models.Room, c models.Course) bool {
	isLabRoom := r.Type == models.RoomTypeLab
	if (c.Type == models.CourseTypeLab) != isLabRoom {
		return false
	}
	have := lo.Associate(r.Equipment, func(tag string) (string, struct{}) {
		return strings.ToLower(strings.TrimSpace(tag)), struct{}{}
	})
	return lo.EveryBy(c.RequiredEquipment, func(tag string) bool {
		key := strings.ToLower(strings.TrimSpace(tag))
		if key == "" {
			return true
		}
		_, ok := have[key]
		return ok
	})
}

func sameText(a, b string) bool {
	a = strings.TrimSpace(a)
	return a != "" && strings.EqualFold(a, strings.TrimSpace(b))
}
